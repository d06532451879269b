package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sharedcart/sharedcart/internal/auth"
	"github.com/sharedcart/sharedcart/internal/model"
	"github.com/sharedcart/sharedcart/internal/store"
	ws "github.com/sharedcart/sharedcart/internal/websocket"
)

const (
	maxItemNameLen = 200
	minQuantity    = 1
	maxQuantity    = 9999
)

type ItemHandler struct {
	itemStore *store.ItemStore
	listStore *store.ListStore
	hub       *ws.Hub
	logger    *slog.Logger
}

func NewItemHandler(is *store.ItemStore, ls *store.ListStore, hub *ws.Hub, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{itemStore: is, listStore: ls, hub: hub, logger: logger}
}

type itemRequest struct {
	Name       *string  `json:"name"`
	Quantity   *int     `json:"quantity"`
	Weight     *float64 `json:"weight"`
	WeightUnit *string  `json:"weightUnit"`
	Purchased  *bool    `json:"purchased"`
	Version    *int64   `json:"version"`
}

// decodeItemRequest decodes the body and also reports which keys the request
// carried, so an explicit null (clear this field) can be told apart from an
// absent field (leave it alone).
func decodeItemRequest(body io.Reader) (itemRequest, map[string]json.RawMessage, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return itemRequest{}, nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return itemRequest{}, nil, err
	}
	var req itemRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return itemRequest{}, nil, err
	}
	return req, fields, nil
}

func validateItemName(name string) string {
	if name == "" {
		return "Item name is required"
	}
	if len(name) > maxItemNameLen {
		return "Item name must be 200 characters or less"
	}
	return ""
}

// clampQuantity applies the default and range rules: absent or invalid
// quantities become 1, everything else is clamped to [1, 9999].
func clampQuantity(q *int) int {
	if q == nil || *q < minQuantity {
		return minQuantity
	}
	if *q > maxQuantity {
		return maxQuantity
	}
	return *q
}

func validateWeight(weight *float64, unit *string) string {
	if weight != nil && *weight < 0 {
		return "Weight must be non-negative"
	}
	if unit != nil {
		if weight == nil {
			return "Weight unit requires a weight"
		}
		if !model.WeightUnits[*unit] {
			return "Weight unit must be one of: lbs, kg, oz, g, lb"
		}
	}
	return ""
}

// requireMember loads the list from the path and checks the caller belongs to
// it. On failure it writes the response and returns nil.
func (h *ItemHandler) requireMember(w http.ResponseWriter, r *http.Request) *model.List {
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

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	list := h.requireMember(w, r)
	if list == nil {
		return
	}
	ac, _ := auth.FromContext(r.Context())

	req, _, err := decodeItemRequest(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	name := ""
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if msg := validateItemName(name); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := validateWeight(req.Weight, req.WeightUnit); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	item, err := h.itemStore.Create(list.ID, name, clampQuantity(req.Quantity), req.Weight, req.WeightUnit, ac.UserID)
	if err != nil {
		h.logger.Error("create item", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to add item")
		return
	}

	h.hub.Broadcast(ws.NewMessage("item", "created", list.ID, item.ID, nil))

	writeData(w, http.StatusCreated, item)
}

func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	list := h.requireMember(w, r)
	if list == nil {
		return
	}
	ac, _ := auth.FromContext(r.Context())

	itemID, err := parsePathID(r, "itemId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	existing, err := h.itemStore.GetByID(itemID)
	if err != nil {
		h.logger.Error("get item", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update item")
		return
	}
	if existing == nil || existing.ListID != list.ID {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}

	req, fields, err := decodeItemRequest(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Merge partial fields over the existing row.
	upd := store.ItemUpdate{
		Name:            existing.Name,
		Quantity:        existing.Quantity,
		Weight:          existing.Weight,
		WeightUnit:      existing.WeightUnit,
		Purchased:       existing.Purchased,
		Actor:           ac.UserID,
		ExpectedVersion: req.Version,
	}
	if req.Name != nil {
		upd.Name = strings.TrimSpace(*req.Name)
	}
	if req.Quantity != nil {
		upd.Quantity = clampQuantity(req.Quantity)
	}
	if _, ok := fields["weight"]; ok {
		upd.Weight = req.Weight
		if req.Weight == nil {
			// Clearing the weight clears the unit with it.
			upd.WeightUnit = nil
		}
	}
	if _, ok := fields["weightUnit"]; ok {
		upd.WeightUnit = req.WeightUnit
	}
	if req.Purchased != nil {
		upd.Purchased = *req.Purchased
	}

	if msg := validateItemName(upd.Name); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := validateWeight(upd.Weight, upd.WeightUnit); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	item, err := h.itemStore.Update(itemID, upd)
	if err != nil {
		if err == store.ErrVersionConflict {
			writeError(w, http.StatusConflict, "Item was modified by someone else. Refresh and try again.")
			return
		}
		h.logger.Error("update item", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update item")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}

	h.hub.Broadcast(ws.NewMessage("item", "updated", list.ID, item.ID, nil))

	writeData(w, http.StatusOK, item)
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	list := h.requireMember(w, r)
	if list == nil {
		return
	}

	itemID, err := parsePathID(r, "itemId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	deleted, err := h.itemStore.Delete(list.ID, itemID)
	if err != nil {
		h.logger.Error("delete item", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete item")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}

	h.hub.Broadcast(ws.NewMessage("item", "deleted", list.ID, itemID, nil))

	writeData(w, http.StatusOK, map[string]string{"message": "Item deleted"})
}
