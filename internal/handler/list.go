package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sharedcart/sharedcart/internal/auth"
	"github.com/sharedcart/sharedcart/internal/model"
	"github.com/sharedcart/sharedcart/internal/store"
	ws "github.com/sharedcart/sharedcart/internal/websocket"
)

const (
	maxListNameLen = 100
	maxListDescLen = 500
)

type ListHandler struct {
	listStore *store.ListStore
	itemStore *store.ItemStore
	hub       *ws.Hub
	logger    *slog.Logger
}

func NewListHandler(ls *store.ListStore, is *store.ItemStore, hub *ws.Hub, logger *slog.Logger) *ListHandler {
	return &ListHandler{listStore: ls, itemStore: is, hub: hub, logger: logger}
}

type listRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// listDetail is the list payload returned by create/join/get.
type listDetail struct {
	model.List
	CreatorName string             `json:"creatorName"`
	Members     []model.MemberInfo `json:"members"`
	Items       []model.Item       `json:"items,omitempty"`
}

func validateListFields(name, description string) string {
	if name == "" {
		return "List name is required"
	}
	if len(name) > maxListNameLen {
		return "List name must be 100 characters or less"
	}
	if len(description) > maxListDescLen {
		return "Description must be 500 characters or less"
	}
	return ""
}

func (h *ListHandler) detail(list *model.List, includeItems bool) (*listDetail, error) {
	creatorName, err := h.listStore.CreatorName(list.ID)
	if err != nil {
		return nil, err
	}
	members, err := h.listStore.ListMembers(list.ID)
	if err != nil {
		return nil, err
	}
	d := &listDetail{List: *list, CreatorName: creatorName, Members: members}
	if includeItems {
		items, err := h.itemStore.ListByList(list.ID)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []model.Item{}
		}
		d.Items = items
	}
	return d, nil
}

func (h *ListHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)

	if msg := validateListFields(req.Name, req.Description); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	list, err := h.listStore.Create(r.Context(), req.Name, req.Description, ac.UserID)
	if err != nil {
		h.logger.Error("create list", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create list")
		return
	}

	d, err := h.detail(list, false)
	if err != nil {
		h.logger.Error("load list detail", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create list")
		return
	}
	writeData(w, http.StatusCreated, d)
}

type joinRequest struct {
	Code string `json:"code"`
}

func (h *ListHandler) Join(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "Share code is required")
		return
	}

	list, err := h.listStore.GetByCode(req.Code)
	if err != nil {
		h.logger.Error("join lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to join list")
		return
	}
	if list == nil {
		writeError(w, http.StatusNotFound, "No list found with that code")
		return
	}

	if err := h.listStore.AddMember(list.ID, ac.UserID); err != nil {
		if err == store.ErrAlreadyMember {
			writeError(w, http.StatusConflict, "You are already a member of this list")
			return
		}
		h.logger.Error("add member", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to join list")
		return
	}

	h.hub.Broadcast(ws.NewMessage("member", "joined", list.ID, ac.UserID, nil))

	d, err := h.detail(list, false)
	if err != nil {
		h.logger.Error("load list detail", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to join list")
		return
	}
	writeData(w, http.StatusOK, d)
}

func (h *ListHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	summaries, err := h.listStore.ListForUser(ac.UserID)
	if err != nil {
		h.logger.Error("list lists", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load lists")
		return
	}
	if summaries == nil {
		summaries = []model.ListSummary{}
	}
	writeData(w, http.StatusOK, summaries)
}

// requireMember loads a list and checks the caller's membership. On failure it
// writes the error response and returns nil.
func (h *ListHandler) requireMember(w http.ResponseWriter, r *http.Request) *model.List {
	ac, _ := auth.FromContext(r.Context())

	listID, err := parsePathID(r, "listId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid list id")
		return nil
	}

	list, err := h.listStore.GetByID(listID)
	if err != nil {
		h.logger.Error("get list", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load list")
		return nil
	}
	if list == nil {
		writeError(w, http.StatusNotFound, "List not found")
		return nil
	}

	member, err := h.listStore.IsMember(list.ID, ac.UserID)
	if err != nil {
		h.logger.Error("check membership", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load list")
		return nil
	}
	if !member {
		writeError(w, http.StatusForbidden, "You are not a member of this list")
		return nil
	}
	return list
}

func (h *ListHandler) Get(w http.ResponseWriter, r *http.Request) {
	list := h.requireMember(w, r)
	if list == nil {
		return
	}

	d, err := h.detail(list, true)
	if err != nil {
		h.logger.Error("load list detail", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load list")
		return
	}
	writeData(w, http.StatusOK, d)
}

func (h *ListHandler) Update(w http.ResponseWriter, r *http.Request) {
	list := h.requireMember(w, r)
	if list == nil {
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	name := list.Name
	description := list.Description
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		description = strings.TrimSpace(*req.Description)
	}

	if msg := validateListFields(name, description); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	updated, err := h.listStore.Update(list.ID, name, description)
	if err != nil {
		h.logger.Error("update list", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update list")
		return
	}

	h.hub.Broadcast(ws.NewMessage("list", "updated", list.ID, list.ID, nil))

	d, err := h.detail(updated, false)
	if err != nil {
		h.logger.Error("load list detail", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update list")
		return
	}
	writeData(w, http.StatusOK, d)
}

func (h *ListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	listID, err := parsePathID(r, "listId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid list id")
		return
	}

	list, err := h.listStore.GetByID(listID)
	if err != nil {
		h.logger.Error("get list", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete list")
		return
	}
	if list == nil {
		writeError(w, http.StatusNotFound, "List not found")
		return
	}
	if list.CreatorID != ac.UserID {
		writeError(w, http.StatusForbidden, "Only the list creator can delete this list")
		return
	}

	if err := h.listStore.Delete(list.ID); err != nil {
		h.logger.Error("delete list", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete list")
		return
	}

	h.hub.Broadcast(ws.NewMessage("list", "deleted", list.ID, list.ID, nil))

	writeData(w, http.StatusOK, map[string]string{"message": "List deleted"})
}

func (h *ListHandler) Leave(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	listID, err := parsePathID(r, "listId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid list id")
		return
	}

	list, err := h.listStore.GetByID(listID)
	if err != nil {
		h.logger.Error("get list", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to leave list")
		return
	}
	if list == nil {
		writeError(w, http.StatusNotFound, "List not found")
		return
	}

	member, err := h.listStore.IsMember(list.ID, ac.UserID)
	if err != nil {
		h.logger.Error("check membership", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to leave list")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "You are not a member of this list")
		return
	}

	if list.CreatorID == ac.UserID {
		writeError(w, http.StatusForbidden, "The creator cannot leave the list. Delete it instead.")
		return
	}

	if err := h.listStore.RemoveMember(list.ID, ac.UserID); err != nil {
		h.logger.Error("remove member", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to leave list")
		return
	}

	h.hub.Broadcast(ws.NewMessage("member", "left", list.ID, ac.UserID, nil))

	writeData(w, http.StatusOK, map[string]string{"message": "Left the list"})
}

// Watch upgrades to a WebSocket subscribed to the list's sync events.
func (h *ListHandler) Watch(w http.ResponseWriter, r *http.Request) {
	list := h.requireMember(w, r)
	if list == nil {
		return
	}
	ws.Serve(h.hub, list.ID, w, r)
}
