package tonconnect

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tonvault/backend/internal/keystore"
	"github.com/tonvault/backend/internal/models"
	"github.com/tonvault/backend/internal/ton"
	"github.com/tonvault/backend/internal/walletindex"
	"go.uber.org/zap"
	"golang.org/x/crypto/nacl/box"
)

// Attempt states. Failed absorbs from any non-terminal state.
const (
	StateIdle             = "idle"
	StateLinkParsed       = "link_parsed"
	StateIdentityResolved = "identity_resolved"
	StateSelectionPending = "selection_pending"
	StateDeriving         = "deriving"
	StatePersisted        = "persisted"
	StateClosed           = "closed"
	StateFailed           = "failed"
)

var (
	ErrAttemptNotFound = errors.New("connect attempt not found")
	ErrAttemptBusy     = errors.New("connect attempt already in flight")
	ErrNoSelection     = errors.New("key and wallet must be selected")
)

// Attempt is one in-flight connect flow: parsed link, resolved identity and
// the optional pre-seeded selection from LastChoiceMemory.
type Attempt struct {
	ID       string       `json:"id"`
	Link     *Link        `json:"-"`
	Identity *AppIdentity `json:"identity"`

	// Pre-seeded from the last choice for this origin; the user may override.
	PreselectedKeyID    *int64 `json:"preselected_key_id,omitempty"`
	PreselectedWalletID *int64 `json:"preselected_wallet_id,omitempty"`

	mu    sync.Mutex
	state string
	busy  bool
}

func (a *Attempt) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Attempt) setState(s string) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// begin gates the Connect action: both ids chosen, no derivation in flight.
// Prevents duplicate submissions from rapid re-clicks.
func (a *Attempt) begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		return ErrAttemptBusy
	}
	if a.state != StateSelectionPending {
		return fmt.Errorf("connect not possible in state %s", a.state)
	}
	a.busy = true
	a.state = StateDeriving
	return nil
}

// finish clears the busy flag on every exit path so the UI can never be left
// stuck in a "connecting" state.
func (a *Attempt) finish(state string) {
	a.mu.Lock()
	a.busy = false
	a.state = state
	a.mu.Unlock()
}

// ConnectAck carries everything the bridge needs to dispatch the outbound
// connect reply. All fields come from state already held by the attempt;
// nothing is re-fetched.
type ConnectAck struct {
	Wallet        *ton.DerivedWallet
	Secret        ed25519.PrivateKey // decrypted signing key of the chosen wallet
	Host          string
	SessionPublic *[32]byte
	SessionSecret *[32]byte
	ClientID      string
	Request       *ConnectRequest
	Raw           json.RawMessage
}

type BridgeSender interface {
	SendConnectAck(ctx context.Context, ack *ConnectAck) error
}

type SessionStore interface {
	Upsert(ctx context.Context, s *models.ConnectSession) error
}

// Establisher runs the connect protocol: parse link, resolve identity, wait
// for a selection, derive, persist exactly one session and dispatch the ack.
type Establisher struct {
	index      *walletindex.Index
	resolver   *ManifestResolver
	sessions   SessionStore
	lastChoice *LastChoiceMemory
	bridge     BridgeSender
	log        *zap.Logger

	mu       sync.Mutex
	attempts map[string]*Attempt
}

func NewEstablisher(
	index *walletindex.Index,
	resolver *ManifestResolver,
	sessions SessionStore,
	lastChoice *LastChoiceMemory,
	bridge BridgeSender,
	log *zap.Logger,
) *Establisher {
	return &Establisher{
		index:      index,
		resolver:   resolver,
		sessions:   sessions,
		lastChoice: lastChoice,
		bridge:     bridge,
		log:        log,
		attempts:   make(map[string]*Attempt),
	}
}

// Open parses the connect link, resolves the dApp identity and registers a
// new attempt waiting for the user's selection. The only failure mode is a
// bad link: identity resolution degrades instead of failing.
func (e *Establisher) Open(ctx context.Context, rawLink string) (*Attempt, error) {
	link, err := ParseLink(rawLink)
	if err != nil {
		return nil, err
	}

	attempt := &Attempt{
		ID:    uuid.New().String(),
		state: StateIdle,
	}
	attempt.Link = link
	attempt.setState(StateLinkParsed)

	// Never fails per the resolver contract; worst case the fields are synthesized.
	attempt.Identity = e.resolver.Resolve(ctx, link)
	attempt.setState(StateIdentityResolved)

	e.preseedSelection(ctx, attempt)
	attempt.setState(StateSelectionPending)

	e.mu.Lock()
	e.attempts[attempt.ID] = attempt
	e.mu.Unlock()

	e.log.Info("connect attempt opened",
		zap.String("attempt_id", attempt.ID),
		zap.String("dapp", attempt.Identity.Name),
		zap.String("url", attempt.Identity.URL),
	)
	return attempt, nil
}

// preseedSelection recalls the last choice for this origin and applies it only
// when the referenced key and wallet still exist in the current index.
func (e *Establisher) preseedSelection(ctx context.Context, attempt *Attempt) {
	saved, err := e.lastChoice.Recall(ctx, attempt.Identity.URL)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			e.log.Warn("last choice recall failed", zap.Error(err))
		}
		return
	}

	if _, ok := e.index.FindWallet(saved.KeyID, saved.WalletID); !ok {
		return
	}
	attempt.PreselectedKeyID = &saved.KeyID
	attempt.PreselectedWalletID = &saved.WalletID
}

func (e *Establisher) Get(attemptID string) (*Attempt, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.attempts[attemptID]
	return a, ok
}

// Approve completes the attempt for the chosen key/wallet: decrypts the key
// with the password, generates a fresh ephemeral X25519 pair, persists exactly
// one session row, remembers the choice, and dispatches the bridge ack.
//
// A wrong password creates nothing and returns the attempt to the selection
// state so the user can retry. Derivation, persistence and bridge failures
// are fatal for the attempt.
func (e *Establisher) Approve(ctx context.Context, attemptID string, keyID, walletID int64, password []byte) (*models.ConnectSession, error) {
	attempt, ok := e.Get(attemptID)
	if !ok {
		return nil, ErrAttemptNotFound
	}
	if keyID == 0 || walletID == 0 {
		return nil, ErrNoSelection
	}

	if err := attempt.begin(); err != nil {
		return nil, err
	}

	session, err := e.approve(ctx, attempt, keyID, walletID, password)
	if err != nil {
		if errors.Is(err, models.ErrBadPassword) || errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrNoEncryptedSecret) {
			attempt.finish(StateSelectionPending) // user-recoverable, nothing persisted
		} else {
			attempt.finish(StateFailed)
		}
		return nil, err
	}

	attempt.finish(StatePersisted)
	return session, nil
}

func (e *Establisher) approve(ctx context.Context, attempt *Attempt, keyID, walletID int64, password []byte) (*models.ConnectSession, error) {
	kw, ok := e.index.FindKey(keyID)
	if !ok {
		return nil, models.ErrNotFound
	}
	if _, ok := e.index.FindWallet(keyID, walletID); !ok {
		return nil, models.ErrNotFound
	}
	if kw.Key.WatchOnly() {
		return nil, models.ErrNoEncryptedSecret
	}

	payload, err := keystore.Decrypt(password, *kw.Key.Encrypted)
	if err != nil {
		return nil, err
	}
	_, signKey, err := payload.KeyPair()
	if err != nil {
		return nil, models.ErrBadPassword
	}

	derived, err := e.index.WalletsOf(keyID)
	if err != nil {
		return nil, err
	}
	var chosen *ton.DerivedWallet
	for i := range derived {
		if derived[i].WalletID == walletID {
			chosen = &derived[i]
			break
		}
	}
	if chosen == nil {
		return nil, models.ErrNotFound
	}

	// Fresh pair per accepted request, never reused across sessions.
	sessionPub, sessionSecret, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	identity := attempt.Identity
	session := &models.ConnectSession{
		SecretKey: sessionSecret[:],
		PublicKey: sessionPub[:],
		ClientID:  identity.ClientID,
		KeyID:     keyID,
		WalletID:  walletID,
		IconURL:   identity.IconURL,
		Name:      identity.Name,
		URL:       identity.URL,
	}
	if err := e.sessions.Upsert(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	if err := e.lastChoice.Remember(ctx, identity.URL, keyID, walletID); err != nil {
		e.log.Warn("failed to remember wallet choice", zap.String("url", identity.URL), zap.Error(err))
	}

	ack := &ConnectAck{
		Wallet:        chosen,
		Secret:        signKey,
		Host:          identity.Host,
		SessionPublic: sessionPub,
		SessionSecret: sessionSecret,
		ClientID:      identity.ClientID,
		Request:       &attempt.Link.Request,
		Raw:           attempt.Link.Raw,
	}
	if err := e.bridge.SendConnectAck(ctx, ack); err != nil {
		return nil, fmt.Errorf("dispatch connect ack: %w", err)
	}

	e.log.Info("connect session established",
		zap.String("attempt_id", attempt.ID),
		zap.String("dapp", identity.Name),
		zap.Int64("key_id", keyID),
		zap.Int64("wallet_id", walletID),
	)
	return session, nil
}

// Close dismisses an attempt from any state and always clears the busy flag.
func (e *Establisher) Close(attemptID string) {
	e.mu.Lock()
	attempt, ok := e.attempts[attemptID]
	delete(e.attempts, attemptID)
	e.mu.Unlock()

	if ok {
		attempt.finish(StateClosed)
	}
}
