package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/alert"
	"github.com/Art-555/CallOut/internal/auth"
	"github.com/Art-555/CallOut/internal/db"
	"github.com/Art-555/CallOut/internal/dispatch"
	"github.com/Art-555/CallOut/internal/ledger"
	"github.com/Art-555/CallOut/internal/redis"
)

// --- fakes ---

type fakeStore struct {
	users     map[uuid.UUID]*db.User
	profiles  map[uuid.UUID]*db.Profile
	contacts  map[uuid.UUID]*db.Contact
	isContact bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[uuid.UUID]*db.User),
		profiles: make(map[uuid.UUID]*db.Profile),
		contacts: make(map[uuid.UUID]*db.Contact),
	}
}

func (f *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (*db.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) SearchUsersByEmailPrefix(ctx context.Context, prefix string, limit int) ([]*db.User, error) {
	var out []*db.User
	for _, u := range f.users {
		if len(u.Email) >= len(prefix) && u.Email[:len(prefix)] == prefix {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) GetProfile(ctx context.Context, userID uuid.UUID) (*db.Profile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) UpdateProfile(ctx context.Context, p *db.Profile) error {
	f.profiles[p.UserID] = p
	return nil
}

func (f *fakeStore) IsContactOf(ctx context.Context, ownerID uuid.UUID, viewer *db.User) (bool, error) {
	return f.isContact, nil
}

func (f *fakeStore) CreateContact(ctx context.Context, c *db.Contact) error {
	f.contacts[c.ID] = c
	return nil
}

func (f *fakeStore) ListContacts(ctx context.Context, ownerID uuid.UUID) ([]*db.Contact, error) {
	var out []*db.Contact
	for _, c := range f.contacts {
		if c.OwnerUserID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetContact(ctx context.Context, ownerID, contactID uuid.UUID) (*db.Contact, error) {
	c, ok := f.contacts[contactID]
	if !ok || c.OwnerUserID != ownerID {
		return nil, db.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) UpdateContact(ctx context.Context, c *db.Contact) error {
	existing, ok := f.contacts[c.ID]
	if !ok || existing.OwnerUserID != c.OwnerUserID {
		return db.ErrNotFound
	}
	f.contacts[c.ID] = c
	return nil
}

func (f *fakeStore) DeleteContact(ctx context.Context, ownerID, contactID uuid.UUID) error {
	c, ok := f.contacts[contactID]
	if !ok || c.OwnerUserID != ownerID {
		return db.ErrNotFound
	}
	delete(f.contacts, contactID)
	return nil
}

type fakeAlerts struct {
	alerts map[uuid.UUID]*db.Alert
}

func (f *fakeAlerts) GetAlert(ctx context.Context, id uuid.UUID) (*db.Alert, error) {
	a, ok := f.alerts[id]
	if !ok {
		return nil, ledger.ErrAlertNotFound
	}
	return a, nil
}

func (f *fakeAlerts) ListAlertsBySender(ctx context.Context, senderID uuid.UUID, limit, offset int) ([]*db.Alert, error) {
	var out []*db.Alert
	for _, a := range f.alerts {
		if a.SenderID == senderID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeDispatcher struct {
	summary    dispatch.Summary
	err        error
	dispatched *db.Alert
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, a *db.Alert, recipients []*db.Recipient) (dispatch.Summary, error) {
	f.dispatched = a
	return f.summary, f.err
}

type fakeAuth struct {
	user  *db.User
	token string
	err   error
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password string) (*db.User, string, error) {
	return f.user, f.token, f.err
}

func (f *fakeAuth) SignIn(ctx context.Context, email, password string) (*db.User, string, error) {
	return f.user, f.token, f.err
}

func (f *fakeAuth) SignOut(ctx context.Context, token string) error {
	return f.err
}

// --- helpers ---

type testEnv struct {
	handler    *Handler
	store      *fakeStore
	alerts     *fakeAlerts
	dispatcher *fakeDispatcher
	auth       *fakeAuth
	user       *db.User
}

func setupTestHandler(t *testing.T) *testEnv {
	t.Helper()

	store := newFakeStore()
	alerts := &fakeAlerts{alerts: make(map[uuid.UUID]*db.Alert)}
	dispatcher := &fakeDispatcher{summary: dispatch.Summary{Sent: 1}}
	fauth := &fakeAuth{}

	user := &db.User{ID: uuid.New(), Email: "owner@example.com"}
	store.users[user.ID] = user
	store.profiles[user.ID] = &db.Profile{UserID: user.ID, Name: "Owner", BloodType: "O+"}

	contact := &db.Contact{
		ID:          uuid.New(),
		OwnerUserID: user.ID,
		Email:       "friend@example.com",
		DisplayName: "Friend",
	}
	store.contacts[contact.ID] = contact

	h := NewHandler(zap.NewNop(), Deps{
		Store:      store,
		Alerts:     alerts,
		Dispatcher: dispatcher,
		Composer:   alert.NewComposer(alert.Policy{}),
		Resolver:   alert.NewResolver(store, zap.NewNop()),
		Auth:       fauth,
	})

	return &testEnv{
		handler:    h,
		store:      store,
		alerts:     alerts,
		dispatcher: dispatcher,
		auth:       fauth,
		user:       user,
	}
}

// authed attaches the test user to the request context, standing in for
// the Authenticator middleware.
func (e *testEnv) authed(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), userContextKey, e.user)
	return r.WithContext(ctx)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&er); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return er
}

// --- trigger tests ---

func TestTriggerAlert(t *testing.T) {
	env := setupTestHandler(t)
	env.dispatcher.summary = dispatch.Summary{Sent: 1, Failed: 0}

	body, _ := json.Marshal(triggerRequest{
		Category: db.CategoryMedical,
		Note:     "need help",
		Location: &db.Location{Lat: 37.7, Lon: -122.4},
	})

	req := env.authed(httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	env.handler.TriggerAlert(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp triggerResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" {
		t.Error("expected alert id")
	}
	if resp.Sent != 1 || resp.Failed != 0 {
		t.Errorf("counts = %d/%d, want 1/0", resp.Sent, resp.Failed)
	}

	if env.dispatcher.dispatched == nil {
		t.Fatal("dispatcher not called")
	}
	if env.dispatcher.dispatched.Category != db.CategoryMedical {
		t.Errorf("category = %s", env.dispatcher.dispatched.Category)
	}
	if env.dispatcher.dispatched.Profile.BloodType != "O+" {
		t.Error("profile snapshot not attached")
	}
}

func TestTriggerAlert_InvalidCategory(t *testing.T) {
	env := setupTestHandler(t)

	body, _ := json.Marshal(triggerRequest{Category: "tsunami"})
	req := env.authed(httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	env.handler.TriggerAlert(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if er := decodeError(t, rec); er.Type != "invalid_category" {
		t.Errorf("type = %s", er.Type)
	}
}

func TestTriggerAlert_NoteTooLong(t *testing.T) {
	env := setupTestHandler(t)

	long := make([]byte, alert.MaxNoteLen+1)
	for i := range long {
		long[i] = 'x'
	}
	body, _ := json.Marshal(triggerRequest{Category: db.CategoryPersonal, Note: string(long)})
	req := env.authed(httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	env.handler.TriggerAlert(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if er := decodeError(t, rec); er.Type != "invalid_note" {
		t.Errorf("type = %s", er.Type)
	}
}

func TestTriggerAlert_NoRecipients(t *testing.T) {
	env := setupTestHandler(t)
	env.store.contacts = make(map[uuid.UUID]*db.Contact)

	body, _ := json.Marshal(triggerRequest{Category: db.CategoryPersonal})
	req := env.authed(httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	env.handler.TriggerAlert(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if er := decodeError(t, rec); er.Type != "no_recipients" {
		t.Errorf("type = %s", er.Type)
	}
}

func TestTriggerAlert_DispatchAborted(t *testing.T) {
	env := setupTestHandler(t)
	env.dispatcher.err = dispatch.ErrDispatchAborted

	body, _ := json.Marshal(triggerRequest{Category: db.CategoryPersonal})
	req := env.authed(httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	env.handler.TriggerAlert(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestTriggerAlert_AbortReleasesIdempotencyKey(t *testing.T) {
	env := setupTestHandler(t)

	client, cleanup := setupSessionRedis(t)
	defer cleanup()
	env.handler.idempotency = redis.NewIdempotencyService(client, zap.NewNop())

	env.dispatcher.err = dispatch.ErrDispatchAborted

	body, _ := json.Marshal(triggerRequest{Category: db.CategoryMedical})
	req := env.authed(httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewReader(body)))
	req.Header.Set("Idempotency-Key", "sos-press-1")
	rec := httptest.NewRecorder()
	env.handler.TriggerAlert(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	// The error told the caller to retry; the same key must go through
	// once dispatch recovers, not collide with a stale reservation.
	env.dispatcher.err = nil
	req = env.authed(httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewReader(body)))
	req.Header.Set("Idempotency-Key", "sos-press-1")
	rec = httptest.NewRecorder()
	env.handler.TriggerAlert(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("retry status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
}

func TestTriggerAlert_PartialFailure(t *testing.T) {
	env := setupTestHandler(t)
	env.dispatcher.summary = dispatch.Summary{Sent: 2, Failed: 1}

	body, _ := json.Marshal(triggerRequest{Category: db.CategoryDisaster})
	req := env.authed(httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	env.handler.TriggerAlert(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: partial failure is still accepted", rec.Code)
	}

	var resp triggerResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Sent != 2 || resp.Failed != 1 {
		t.Errorf("counts = %d/%d, want 2/1", resp.Sent, resp.Failed)
	}
}

func TestTriggerAlert_MalformedBody(t *testing.T) {
	env := setupTestHandler(t)

	req := env.authed(httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewReader([]byte("{not json"))))
	rec := httptest.NewRecorder()
	env.handler.TriggerAlert(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// --- alert read tests ---

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestGetAlert(t *testing.T) {
	env := setupTestHandler(t)
	a := &db.Alert{ID: uuid.New(), SenderID: env.user.ID, Category: db.CategoryMedical}
	env.alerts.alerts[a.ID] = a

	req := env.authed(httptest.NewRequest(http.MethodGet, "/v1/alerts/"+a.ID.String(), nil))
	req = withURLParam(req, "id", a.ID.String())
	rec := httptest.NewRecorder()
	env.handler.GetAlert(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got db.Alert
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("id = %s, want %s", got.ID, a.ID)
	}
}

func TestGetAlert_OtherUsersAlertIsHidden(t *testing.T) {
	env := setupTestHandler(t)
	a := &db.Alert{ID: uuid.New(), SenderID: uuid.New(), Category: db.CategoryMedical}
	env.alerts.alerts[a.ID] = a

	req := env.authed(httptest.NewRequest(http.MethodGet, "/v1/alerts/"+a.ID.String(), nil))
	req = withURLParam(req, "id", a.ID.String())
	rec := httptest.NewRecorder()
	env.handler.GetAlert(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetAlert_NotFound(t *testing.T) {
	env := setupTestHandler(t)

	id := uuid.New()
	req := env.authed(httptest.NewRequest(http.MethodGet, "/v1/alerts/"+id.String(), nil))
	req = withURLParam(req, "id", id.String())
	rec := httptest.NewRecorder()
	env.handler.GetAlert(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListAlerts(t *testing.T) {
	env := setupTestHandler(t)
	for i := 0; i < 3; i++ {
		a := &db.Alert{ID: uuid.New(), SenderID: env.user.ID}
		env.alerts.alerts[a.ID] = a
	}
	// someone else's alert
	other := &db.Alert{ID: uuid.New(), SenderID: uuid.New()}
	env.alerts.alerts[other.ID] = other

	req := env.authed(httptest.NewRequest(http.MethodGet, "/v1/alerts", nil))
	rec := httptest.NewRecorder()
	env.handler.ListAlerts(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Count != 3 {
		t.Errorf("count = %d, want 3", resp.Count)
	}
}

// --- profile tests ---

func TestGetUserProfile_AllowedForContact(t *testing.T) {
	env := setupTestHandler(t)
	env.store.isContact = true

	owner := &db.User{ID: uuid.New(), Email: "other@example.com"}
	env.store.users[owner.ID] = owner
	env.store.profiles[owner.ID] = &db.Profile{UserID: owner.ID, Name: "Other", BloodType: "AB-"}

	req := env.authed(httptest.NewRequest(http.MethodGet, "/v1/profiles/"+owner.ID.String(), nil))
	req = withURLParam(req, "userID", owner.ID.String())
	rec := httptest.NewRecorder()
	env.handler.GetUserProfile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var p db.Profile
	json.NewDecoder(rec.Body).Decode(&p)
	if p.BloodType != "AB-" {
		t.Errorf("blood type = %s", p.BloodType)
	}
}

func TestGetUserProfile_ForbiddenForStranger(t *testing.T) {
	env := setupTestHandler(t)
	env.store.isContact = false

	owner := &db.User{ID: uuid.New(), Email: "other@example.com"}
	env.store.users[owner.ID] = owner
	env.store.profiles[owner.ID] = &db.Profile{UserID: owner.ID}

	req := env.authed(httptest.NewRequest(http.MethodGet, "/v1/profiles/"+owner.ID.String(), nil))
	req = withURLParam(req, "userID", owner.ID.String())
	rec := httptest.NewRecorder()
	env.handler.GetUserProfile(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestGetUserProfile_OwnerAlwaysAllowed(t *testing.T) {
	env := setupTestHandler(t)
	env.store.isContact = false

	req := env.authed(httptest.NewRequest(http.MethodGet, "/v1/profiles/"+env.user.ID.String(), nil))
	req = withURLParam(req, "userID", env.user.ID.String())
	rec := httptest.NewRecorder()
	env.handler.GetUserProfile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestUpdateMyProfile(t *testing.T) {
	env := setupTestHandler(t)

	body, _ := json.Marshal(map[string]string{
		"name":       "Updated",
		"blood_type": "B+",
		"allergies":  "penicillin",
		"email":      "reachme@example.com",
	})
	req := env.authed(httptest.NewRequest(http.MethodPut, "/v1/profile", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	env.handler.UpdateMyProfile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	stored := env.store.profiles[env.user.ID]
	if stored.BloodType != "B+" {
		t.Error("profile not persisted")
	}
	// The contact email echoed in the response must be the stored one.
	if stored.Email != "reachme@example.com" {
		t.Errorf("email = %q, not persisted", stored.Email)
	}
	var resp db.Profile
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Email != stored.Email {
		t.Errorf("response email %q differs from stored %q", resp.Email, stored.Email)
	}
}

// --- contact tests ---

func TestCreateContact(t *testing.T) {
	env := setupTestHandler(t)

	body, _ := json.Marshal(contactRequest{
		Email:       "New@Example.com",
		DisplayName: "New Contact",
	})
	req := env.authed(httptest.NewRequest(http.MethodPost, "/v1/contacts", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	env.handler.CreateContact(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var c db.Contact
	json.NewDecoder(rec.Body).Decode(&c)
	if c.Email != "new@example.com" {
		t.Errorf("email = %q, want lowercased", c.Email)
	}
	if c.OwnerUserID != env.user.ID {
		t.Error("owner not set from session")
	}
}

func TestCreateContact_NoAddress(t *testing.T) {
	env := setupTestHandler(t)

	body, _ := json.Marshal(contactRequest{DisplayName: "No Address"})
	req := env.authed(httptest.NewRequest(http.MethodPost, "/v1/contacts", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	env.handler.CreateContact(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteContact(t *testing.T) {
	env := setupTestHandler(t)

	var contactID uuid.UUID
	for id := range env.store.contacts {
		contactID = id
	}

	req := env.authed(httptest.NewRequest(http.MethodDelete, "/v1/contacts/"+contactID.String(), nil))
	req = withURLParam(req, "id", contactID.String())
	rec := httptest.NewRecorder()
	env.handler.DeleteContact(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(env.store.contacts) != 0 {
		t.Error("contact not deleted")
	}
}

func TestDeleteContact_NotFound(t *testing.T) {
	env := setupTestHandler(t)

	id := uuid.New()
	req := env.authed(httptest.NewRequest(http.MethodDelete, "/v1/contacts/"+id.String(), nil))
	req = withURLParam(req, "id", id.String())
	rec := httptest.NewRecorder()
	env.handler.DeleteContact(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSearchUsers(t *testing.T) {
	env := setupTestHandler(t)
	env.store.users[uuid.New()] = &db.User{ID: uuid.New(), Email: "owl@example.com"}

	req := env.authed(httptest.NewRequest(http.MethodGet, "/v1/users/search?email=own", nil))
	rec := httptest.NewRecorder()
	env.handler.SearchUsers(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Count != 1 {
		t.Errorf("count = %d, want 1", resp.Count)
	}
}

func TestSearchUsers_ShortPrefix(t *testing.T) {
	env := setupTestHandler(t)

	req := env.authed(httptest.NewRequest(http.MethodGet, "/v1/users/search?email=ab", nil))
	rec := httptest.NewRecorder()
	env.handler.SearchUsers(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// --- auth handler tests ---

func TestSignUpHandler(t *testing.T) {
	env := setupTestHandler(t)
	env.auth.user = &db.User{ID: uuid.New(), Email: "new@example.com"}
	env.auth.token = "tok-123"

	body, _ := json.Marshal(credentialsRequest{Email: "new@example.com", Password: "correcthorse"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/signup", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler.SignUp(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var resp sessionResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Token != "tok-123" {
		t.Errorf("token = %s", resp.Token)
	}
}

func TestSignUpHandler_EmailTaken(t *testing.T) {
	env := setupTestHandler(t)
	env.auth.err = auth.ErrEmailTaken

	body, _ := json.Marshal(credentialsRequest{Email: "dup@example.com", Password: "correcthorse"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/signup", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler.SignUp(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestLoginHandler_BadCredentials(t *testing.T) {
	env := setupTestHandler(t)
	env.auth.err = auth.ErrInvalidCredentials

	body, _ := json.Marshal(credentialsRequest{Email: "a@b.com", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLogoutHandler(t *testing.T) {
	env := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	rec := httptest.NewRecorder()
	env.handler.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestLogoutHandler_MissingToken(t *testing.T) {
	env := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	rec := httptest.NewRecorder()
	env.handler.Logout(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// --- location tests ---

func TestUpdateLocation_NotConfigured(t *testing.T) {
	env := setupTestHandler(t)

	body, _ := json.Marshal(db.Location{Lat: 10, Lon: 20})
	req := env.authed(httptest.NewRequest(http.MethodPut, "/v1/location", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	env.handler.UpdateLocation(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 without a location cache", rec.Code)
	}
}
