package handler

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/sharedcart/sharedcart/internal/auth"
	"github.com/sharedcart/sharedcart/internal/database"
	"github.com/sharedcart/sharedcart/internal/model"
	"github.com/sharedcart/sharedcart/internal/store"
	ws "github.com/sharedcart/sharedcart/internal/websocket"
)

type listFixture struct {
	db    *sql.DB
	users *store.UserStore
	lists *store.ListStore
	items *store.ItemStore
	hub   *ws.Hub
	listH *ListHandler
	itemH *ItemHandler
}

func setupListFixture(t *testing.T) *listFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	lists := store.NewListStore(db)
	items := store.NewItemStore(db)
	hub := ws.NewHub(discardLogger())
	return &listFixture{
		db:    db,
		users: users,
		lists: lists,
		items: items,
		hub:   hub,
		listH: NewListHandler(lists, items, hub, discardLogger()),
		itemH: NewItemHandler(items, lists, hub, discardLogger()),
	}
}

func (f *listFixture) createUser(t *testing.T, email, login string) int64 {
	t.Helper()
	u, err := f.users.Create(email, login, "Test", "User", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := f.users.MarkVerified(u.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	return u.ID
}

// authedRequest builds a request carrying the user's auth context and any path
// values the handler expects.
func authedRequest(t *testing.T, method, path string, userID int64, body any, pathValues map[string]string) *http.Request {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	ctx := auth.WithAuth(req.Context(), auth.AuthContext{UserID: userID, FirstName: "Test", LastName: "User"})
	req = req.WithContext(ctx)
	for name, value := range pathValues {
		req.SetPathValue(name, value)
	}
	return req
}

func listPath(listID int64) map[string]string {
	return map[string]string{"listId": strconv.FormatInt(listID, 10)}
}

func (f *listFixture) createList(t *testing.T, userID int64, name string) *model.List {
	t.Helper()
	rec := httptest.NewRecorder()
	f.listH.Create(rec, authedRequest(t, "POST", "/api/lists/create", userID, map[string]string{"name": name}, nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create list status = %d, body %s", rec.Code, rec.Body)
	}
	var env struct {
		Data listDetail `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return &env.Data.List
}

func TestListCreateHandler(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")

	rec := httptest.NewRecorder()
	body := map[string]string{"name": "Groceries", "description": "weekly"}
	f.listH.Create(rec, authedRequest(t, "POST", "/api/lists/create", alice, body, nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body)
	}
	var env struct {
		Data listDetail `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Name != "Groceries" {
		t.Errorf("name = %q, want Groceries", env.Data.Name)
	}
	if env.Data.Code == "" {
		t.Error("expected a share code")
	}
	if len(env.Data.Members) != 1 || env.Data.Members[0].UserID != alice {
		t.Error("creator should be the sole member")
	}
	if env.Data.CreatorName != "Test User" {
		t.Errorf("creator name = %q, want Test User", env.Data.CreatorName)
	}
}

func TestListCreateValidation(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")

	rec := httptest.NewRecorder()
	f.listH.Create(rec, authedRequest(t, "POST", "/api/lists/create", alice, map[string]string{"name": "   "}, nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d, want 400", rec.Code)
	}
}

func TestListJoin(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")
	bob := f.createUser(t, "bob@example.com", "bob")
	l := f.createList(t, alice, "Groceries")

	rec := httptest.NewRecorder()
	f.listH.Join(rec, authedRequest(t, "POST", "/api/lists/join", bob, map[string]string{"code": l.Code}, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}

	member, err := f.lists.IsMember(l.ID, bob)
	if err != nil {
		t.Fatalf("check membership: %v", err)
	}
	if !member {
		t.Error("bob should be a member after joining")
	}
}

func TestListJoinAlreadyMember(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")
	l := f.createList(t, alice, "Groceries")

	rec := httptest.NewRecorder()
	f.listH.Join(rec, authedRequest(t, "POST", "/api/lists/join", alice, map[string]string{"code": l.Code}, nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestListJoinUnknownCode(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")

	rec := httptest.NewRecorder()
	f.listH.Join(rec, authedRequest(t, "POST", "/api/lists/join", alice, map[string]string{"code": "NOPE99"}, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListGetNonMember(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")
	mallory := f.createUser(t, "mallory@example.com", "mallory")
	l := f.createList(t, alice, "Groceries")

	rec := httptest.NewRecorder()
	f.listH.Get(rec, authedRequest(t, "GET", "/api/lists/1", mallory, nil, listPath(l.ID)))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestListGetIncludesItems(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")
	l := f.createList(t, alice, "Groceries")

	if _, err := f.items.Create(l.ID, "Milk", 1, nil, nil, alice); err != nil {
		t.Fatalf("create item: %v", err)
	}

	rec := httptest.NewRecorder()
	f.listH.Get(rec, authedRequest(t, "GET", "/api/lists/1", alice, nil, listPath(l.ID)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var env struct {
		Data listDetail `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data.Items) != 1 || env.Data.Items[0].Name != "Milk" {
		t.Errorf("items = %v, want the created item", env.Data.Items)
	}
}

func TestListUpdatePartial(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")
	l := f.createList(t, alice, "Groceries")

	rec := httptest.NewRecorder()
	f.listH.Update(rec, authedRequest(t, "PUT", "/api/lists/1", alice, map[string]string{"description": "updated"}, listPath(l.ID)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}

	after, _ := f.lists.GetByID(l.ID)
	if after.Name != "Groceries" {
		t.Errorf("name = %q, should be unchanged", after.Name)
	}
	if after.Description != "updated" {
		t.Errorf("description = %q, want updated", after.Description)
	}
}

func TestListDeleteCreatorOnly(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")
	bob := f.createUser(t, "bob@example.com", "bob")
	l := f.createList(t, alice, "Groceries")
	if err := f.lists.AddMember(l.ID, bob); err != nil {
		t.Fatalf("add member: %v", err)
	}

	rec := httptest.NewRecorder()
	f.listH.Delete(rec, authedRequest(t, "DELETE", "/api/lists/1", bob, nil, listPath(l.ID)))
	if rec.Code != http.StatusForbidden {
		t.Errorf("member delete status = %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.listH.Delete(rec, authedRequest(t, "DELETE", "/api/lists/1", alice, nil, listPath(l.ID)))
	if rec.Code != http.StatusOK {
		t.Errorf("creator delete status = %d, want 200", rec.Code)
	}

	gone, _ := f.lists.GetByID(l.ID)
	if gone != nil {
		t.Error("list should be deleted")
	}
}

func TestListLeave(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")
	bob := f.createUser(t, "bob@example.com", "bob")
	l := f.createList(t, alice, "Groceries")
	if err := f.lists.AddMember(l.ID, bob); err != nil {
		t.Fatalf("add member: %v", err)
	}

	rec := httptest.NewRecorder()
	f.listH.Leave(rec, authedRequest(t, "POST", "/api/lists/1/leave", bob, nil, listPath(l.ID)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}

	member, _ := f.lists.IsMember(l.ID, bob)
	if member {
		t.Error("bob should no longer be a member")
	}
}

func TestListLeaveCreatorBlocked(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")
	l := f.createList(t, alice, "Groceries")

	rec := httptest.NewRecorder()
	f.listH.Leave(rec, authedRequest(t, "POST", "/api/lists/1/leave", alice, nil, listPath(l.ID)))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}

	member, _ := f.lists.IsMember(l.ID, alice)
	if !member {
		t.Error("creator must remain a member")
	}
}

func TestListOverview(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")
	f.createList(t, alice, "Groceries")
	f.createList(t, alice, "Hardware")

	rec := httptest.NewRecorder()
	f.listH.List(rec, authedRequest(t, "GET", "/api/lists", alice, nil, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var env struct {
		Data []model.ListSummary `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data) != 2 {
		t.Errorf("lists = %d, want 2", len(env.Data))
	}
}

func TestListBroadcastsToRoom(t *testing.T) {
	f := setupListFixture(t)
	alice := f.createUser(t, "alice@example.com", "alice")
	bob := f.createUser(t, "bob@example.com", "bob")
	l := f.createList(t, alice, "Groceries")

	watcher := ws.NewClient(f.hub, nil, l.ID)
	f.hub.Register(watcher)
	t.Cleanup(func() { f.hub.Unregister(watcher) })

	rec := httptest.NewRecorder()
	f.listH.Join(rec, authedRequest(t, "POST", "/api/lists/join", bob, map[string]string{"code": l.Code}, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d", rec.Code)
	}

	select {
	case data := <-watcher.Send():
		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if msg.Type != "member_joined" {
			t.Errorf("type = %q, want member_joined", msg.Type)
		}
	default:
		t.Fatal("expected a member_joined broadcast")
	}
}
