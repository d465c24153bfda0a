package tonconnect

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/tonvault/backend/internal/keystore"
	"github.com/tonvault/backend/internal/models"
	"github.com/tonvault/backend/internal/ton"
	"github.com/tonvault/backend/internal/walletindex"
	"go.uber.org/zap"
)

// --- fakes ---

type memSessionStore struct {
	mu       sync.Mutex
	byClient map[string]*models.ConnectSession
	nextID   int64
	failNext bool
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{byClient: map[string]*models.ConnectSession{}}
}

func (s *memSessionStore) Upsert(_ context.Context, sess *models.ConnectSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("db down")
	}
	if existing, ok := s.byClient[sess.ClientID]; ok {
		sess.ID = existing.ID
	} else {
		s.nextID++
		sess.ID = s.nextID
	}
	cp := *sess
	s.byClient[sess.ClientID] = &cp
	return nil
}

func (s *memSessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byClient)
}

type memLastChoiceStore struct {
	mu   sync.Mutex
	rows map[string]*models.LastSelectedWallet
}

func newMemLastChoiceStore() *memLastChoiceStore {
	return &memLastChoiceStore{rows: map[string]*models.LastSelectedWallet{}}
}

func (s *memLastChoiceStore) Upsert(_ context.Context, url string, keyID, walletID int64) (*models.LastSelectedWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := &models.LastSelectedWallet{URL: url, KeyID: keyID, WalletID: walletID, UpdatedAt: time.Now()}
	s.rows[url] = row
	return row, nil
}

func (s *memLastChoiceStore) Get(_ context.Context, url string) (*models.LastSelectedWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[url]
	if !ok {
		return nil, models.ErrNotFound
	}
	return row, nil
}

type fakeBridge struct {
	mu   sync.Mutex
	acks []*ConnectAck
	fail bool
}

func (b *fakeBridge) SendConnectAck(_ context.Context, ack *ConnectAck) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("bridge unreachable")
	}
	b.acks = append(b.acks, ack)
	return nil
}

func (b *fakeBridge) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.acks)
}

type staticKeySource struct{ keys []models.Key }

func (s *staticKeySource) List(context.Context) ([]models.Key, error) { return s.keys, nil }

type staticWalletSource struct{ wallets []models.Wallet }

func (s *staticWalletSource) ListAll(context.Context) ([]models.Wallet, error) {
	return s.wallets, nil
}

// --- fixture ---

type fixture struct {
	est        *Establisher
	sessions   *memSessionStore
	lastChoice *memLastChoiceStore
	bridge     *fakeBridge
	link       string
	appURL     string
}

const testPassword = "hunter2"

func newFixture(t *testing.T) *fixture {
	t.Helper()

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatal(err)
	}
	encrypted, err := keystore.Encrypt([]byte(testPassword), &keystore.Payload{Seed: seed})
	if err != nil {
		t.Fatal(err)
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	watchPub, _, _ := ed25519.GenerateKey(nil)

	keys := []models.Key{
		{ID: 1, PublicKey: pub, Encrypted: &encrypted, Name: "main", SignType: models.SignTypeTON},
		{ID: 2, PublicKey: watchPub, Name: "watch-only", SignType: models.SignTypeTON},
	}
	wallets := []models.Wallet{
		{ID: 10, KeyID: 1, Type: models.WalletTypeV4R2, SubwalletID: models.DefaultSubwalletID},
		{ID: 11, KeyID: 1, Type: models.WalletTypeV5R1, SubwalletID: models.DefaultSubwalletIDV5R1},
		{ID: 20, KeyID: 2, Type: models.WalletTypeV4R2, SubwalletID: models.DefaultSubwalletID},
	}

	index := walletindex.New(&staticKeySource{keys}, &staticWalletSource{wallets}, ton.NewDeriver("mainnet"), zap.NewNop())
	if err := index.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "Good App", "url": "https://good.app"})
	}))
	t.Cleanup(srv.Close)

	sessions := newMemSessionStore()
	lastChoice := newMemLastChoiceStore()
	bridge := &fakeBridge{}

	est := NewEstablisher(
		index,
		NewManifestResolver(3*time.Second, zap.NewNop()),
		sessions,
		NewLastChoiceMemory(lastChoice, zap.NewNop()),
		bridge,
		zap.NewNop(),
	)

	r := url.QueryEscape(`{"manifestUrl":"` + srv.URL + `/manifest.json"}`)
	return &fixture{
		est:        est,
		sessions:   sessions,
		lastChoice: lastChoice,
		bridge:     bridge,
		link:       "https://x/?id=abc&r=" + r,
		appURL:     "https://good.app",
	}
}

// --- tests ---

func TestOpen_ResolvesIdentity(t *testing.T) {
	f := newFixture(t)

	attempt, err := f.est.Open(context.Background(), f.link)
	if err != nil {
		t.Fatal(err)
	}
	if attempt.State() != StateSelectionPending {
		t.Errorf("state = %s", attempt.State())
	}
	id := attempt.Identity
	if id.Name != "Good App" || id.URL != "https://good.app" || id.Host != "good.app" || id.ClientID != "abc" {
		t.Errorf("identity = %+v", id)
	}
}

func TestOpen_BadLink(t *testing.T) {
	f := newFixture(t)
	if _, err := f.est.Open(context.Background(), "https://x/?id=abc"); !errors.Is(err, models.ErrBadLink) {
		t.Fatalf("expected ErrBadLink, got %v", err)
	}
}

func TestApprove_ExactlyOnceSessionAndDispatch(t *testing.T) {
	f := newFixture(t)

	attempt, err := f.est.Open(context.Background(), f.link)
	if err != nil {
		t.Fatal(err)
	}

	session, err := f.est.Approve(context.Background(), attempt.ID, 1, 10, []byte(testPassword))
	if err != nil {
		t.Fatal(err)
	}

	if f.sessions.count() != 1 {
		t.Errorf("sessions = %d, want exactly 1", f.sessions.count())
	}
	if f.bridge.count() != 1 {
		t.Errorf("dispatches = %d, want exactly 1", f.bridge.count())
	}
	if attempt.State() != StatePersisted {
		t.Errorf("state = %s", attempt.State())
	}

	if session.ClientID != "abc" || session.KeyID != 1 || session.WalletID != 10 {
		t.Errorf("session = %+v", session)
	}
	if len(session.SecretKey) != 32 || len(session.PublicKey) != 32 {
		t.Errorf("ephemeral key sizes: %d/%d", len(session.SecretKey), len(session.PublicKey))
	}

	ack := f.bridge.acks[0]
	if ack.Host != "good.app" || ack.ClientID != "abc" {
		t.Errorf("ack = %+v", ack)
	}
	if ack.Wallet == nil || ack.Wallet.WalletID != 10 {
		t.Error("ack must carry the chosen wallet")
	}
	if len(ack.Secret) != ed25519.PrivateKeySize {
		t.Error("ack must carry the decrypted signing key")
	}

	// The successful connect is remembered for this origin.
	row, err := f.lastChoice.Get(context.Background(), f.appURL)
	if err != nil || row.KeyID != 1 || row.WalletID != 10 {
		t.Errorf("last choice = %+v, err %v", row, err)
	}
}

func TestApprove_WrongPasswordCreatesNothing(t *testing.T) {
	f := newFixture(t)

	attempt, err := f.est.Open(context.Background(), f.link)
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.est.Approve(context.Background(), attempt.ID, 1, 10, []byte("wrong"))
	if !errors.Is(err, models.ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}

	if f.sessions.count() != 0 {
		t.Errorf("sessions = %d, want 0", f.sessions.count())
	}
	if f.bridge.count() != 0 {
		t.Errorf("dispatches = %d, want 0", f.bridge.count())
	}

	// User-recoverable: the attempt returns to the selection state and a
	// retry with the right password succeeds.
	if attempt.State() != StateSelectionPending {
		t.Errorf("state = %s", attempt.State())
	}
	if _, err := f.est.Approve(context.Background(), attempt.ID, 1, 10, []byte(testPassword)); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestApprove_RequiresSelection(t *testing.T) {
	f := newFixture(t)
	attempt, _ := f.est.Open(context.Background(), f.link)

	if _, err := f.est.Approve(context.Background(), attempt.ID, 0, 10, []byte(testPassword)); !errors.Is(err, ErrNoSelection) {
		t.Errorf("missing key: %v", err)
	}
	if _, err := f.est.Approve(context.Background(), attempt.ID, 1, 0, []byte(testPassword)); !errors.Is(err, ErrNoSelection) {
		t.Errorf("missing wallet: %v", err)
	}
}

func TestApprove_WatchOnlyKeyRejected(t *testing.T) {
	f := newFixture(t)
	attempt, _ := f.est.Open(context.Background(), f.link)

	_, err := f.est.Approve(context.Background(), attempt.ID, 2, 20, []byte(testPassword))
	if !errors.Is(err, models.ErrNoEncryptedSecret) {
		t.Fatalf("expected ErrNoEncryptedSecret, got %v", err)
	}
	if f.sessions.count() != 0 || f.bridge.count() != 0 {
		t.Error("nothing may be persisted or dispatched")
	}
}

func TestApprove_NoDoubleSubmit(t *testing.T) {
	f := newFixture(t)
	attempt, _ := f.est.Open(context.Background(), f.link)

	if _, err := f.est.Approve(context.Background(), attempt.ID, 1, 10, []byte(testPassword)); err != nil {
		t.Fatal(err)
	}
	// Attempt already persisted; a re-click must not create a second session.
	if _, err := f.est.Approve(context.Background(), attempt.ID, 1, 10, []byte(testPassword)); err == nil {
		t.Fatal("expected error on double submit")
	}
	if f.sessions.count() != 1 || f.bridge.count() != 1 {
		t.Errorf("sessions=%d dispatches=%d, want 1/1", f.sessions.count(), f.bridge.count())
	}
}

func TestApprove_ReconnectReplacesSession(t *testing.T) {
	f := newFixture(t)

	a1, _ := f.est.Open(context.Background(), f.link)
	if _, err := f.est.Approve(context.Background(), a1.ID, 1, 10, []byte(testPassword)); err != nil {
		t.Fatal(err)
	}
	first := *f.sessions.byClient["abc"]

	a2, _ := f.est.Open(context.Background(), f.link)
	if _, err := f.est.Approve(context.Background(), a2.ID, 1, 11, []byte(testPassword)); err != nil {
		t.Fatal(err)
	}

	if f.sessions.count() != 1 {
		t.Fatalf("sessions = %d, want 1 (replace policy)", f.sessions.count())
	}
	second := *f.sessions.byClient["abc"]
	if second.WalletID != 11 {
		t.Errorf("wallet_id = %d, want 11", second.WalletID)
	}
	// Fresh ephemeral pair per accepted request, never reused.
	if string(first.PublicKey) == string(second.PublicKey) {
		t.Error("ephemeral keypair reused across sessions")
	}
}

func TestApprove_BridgeFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.bridge.fail = true

	attempt, _ := f.est.Open(context.Background(), f.link)
	if _, err := f.est.Approve(context.Background(), attempt.ID, 1, 10, []byte(testPassword)); err == nil {
		t.Fatal("expected bridge error")
	}
	if attempt.State() != StateFailed {
		t.Errorf("state = %s, want failed", attempt.State())
	}
}

func TestApprove_PersistFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.sessions.failNext = true

	attempt, _ := f.est.Open(context.Background(), f.link)
	if _, err := f.est.Approve(context.Background(), attempt.ID, 1, 10, []byte(testPassword)); err == nil {
		t.Fatal("expected persistence error")
	}
	if f.bridge.count() != 0 {
		t.Error("no dispatch may happen when the session was not persisted")
	}
	if attempt.State() != StateFailed {
		t.Errorf("state = %s, want failed", attempt.State())
	}
}

func TestPreseedSelection(t *testing.T) {
	f := newFixture(t)

	// Remembered pair still exists: pre-seeded.
	_, _ = f.lastChoice.Upsert(context.Background(), f.appURL, 1, 11)
	attempt, err := f.est.Open(context.Background(), f.link)
	if err != nil {
		t.Fatal(err)
	}
	if attempt.PreselectedKeyID == nil || *attempt.PreselectedKeyID != 1 ||
		attempt.PreselectedWalletID == nil || *attempt.PreselectedWalletID != 11 {
		t.Errorf("preselection = %v/%v", attempt.PreselectedKeyID, attempt.PreselectedWalletID)
	}

	// Remembered wallet gone from the index: no pre-seed, no error.
	_, _ = f.lastChoice.Upsert(context.Background(), f.appURL, 1, 999)
	attempt2, err := f.est.Open(context.Background(), f.link)
	if err != nil {
		t.Fatal(err)
	}
	if attempt2.PreselectedKeyID != nil || attempt2.PreselectedWalletID != nil {
		t.Error("stale last choice must not be pre-seeded")
	}
}

func TestClose_AlwaysClearsAttempt(t *testing.T) {
	f := newFixture(t)

	attempt, _ := f.est.Open(context.Background(), f.link)
	f.est.Close(attempt.ID)

	if attempt.State() != StateClosed {
		t.Errorf("state = %s", attempt.State())
	}
	if _, ok := f.est.Get(attempt.ID); ok {
		t.Error("closed attempt must be removed")
	}
	// Closing twice or closing an unknown attempt is harmless.
	f.est.Close(attempt.ID)
	f.est.Close("nope")
}

func TestLastChoice_OverwriteKeepsOneRow(t *testing.T) {
	f := newFixture(t)
	mem := NewLastChoiceMemory(f.lastChoice, zap.NewNop())
	ctx := context.Background()

	if err := mem.Remember(ctx, "https://app.example", 7, 42); err != nil {
		t.Fatal(err)
	}
	row, err := mem.Recall(ctx, "https://app.example")
	if err != nil || row.KeyID != 7 || row.WalletID != 42 {
		t.Fatalf("recall = %+v, err %v", row, err)
	}

	if err := mem.Remember(ctx, "https://app.example", 7, 43); err != nil {
		t.Fatal(err)
	}
	row, err = mem.Recall(ctx, "https://app.example")
	if err != nil || row.WalletID != 43 {
		t.Fatalf("overwrite: recall = %+v, err %v", row, err)
	}
	if len(f.lastChoice.rows) != 1 {
		t.Errorf("rows = %d, want 1", len(f.lastChoice.rows))
	}

	if _, err := mem.Recall(ctx, "https://other.example"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown origin: %v", err)
	}
}
