package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hotspotbd/portal-backend/internal/credentials"
	"github.com/hotspotbd/portal-backend/internal/mikrotik"
	"github.com/hotspotbd/portal-backend/internal/store"
)

var (
	// ErrInvalidPackage is returned for a package outside the enumerated set.
	ErrInvalidPackage = errors.New("unknown package")
	// ErrProvisioningFailed is returned when the controller could not
	// create the account after bounded retries. No record is persisted.
	ErrProvisioningFailed = errors.New("account provisioning failed")
)

// maxProvisionAttempts bounds credential regeneration on name collision.
const maxProvisionAttempts = 3

// Notifier delivers an approval request to the administrator. Failures
// are non-fatal to the guest: the request stays pending for manual
// follow-up.
type Notifier interface {
	Notify(ctx context.Context, req *store.Request) error
}

// NopNotifier discards notifications (development without a bot token).
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(ctx context.Context, req *store.Request) error { return nil }

// SubmitInput carries a guest's payment submission.
type SubmitInput struct {
	Package       string
	ContactNumber string
	ProofRef      string
	SourceAddr    string
}

// Decision is the outcome of a processed approval event.
type Decision struct {
	Request   *store.Request
	ExpiresAt time.Time // zero unless approved
}

// Orchestrator drives the request → pending → approved/rejected flow.
// It holds no in-memory state across the approval gap; everything
// needed to resume lives in the store.
type Orchestrator struct {
	store       *store.Store
	controller  mikrotik.Controller
	notifier    Notifier
	generator   *credentials.Generator
	logger      *zap.Logger
	callTimeout time.Duration
}

// NewOrchestrator creates the workflow orchestrator.
func NewOrchestrator(
	st *store.Store,
	controller mikrotik.Controller,
	notifier Notifier,
	generator *credentials.Generator,
	logger *zap.Logger,
) *Orchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		store:       st,
		controller:  controller,
		notifier:    notifier,
		generator:   generator,
		logger:      logger,
		callTimeout: 15 * time.Second,
	}
}

// Submit provisions a disabled account for the chosen package, persists
// a pending request, and notifies the admin. On success the returned
// request carries the plaintext credentials; this is the only time they
// are handed out.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*store.Request, error) {
	pkg, ok := PackageByID(in.Package)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPackage, in.Package)
	}

	sourceAddr := in.SourceAddr
	if sourceAddr == "" {
		sourceAddr = "unknown"
	}

	req, err := o.provision(ctx, pkg, in, sourceAddr)
	if err != nil {
		return nil, err
	}

	o.logger.Info("pending request created",
		zap.String("request_id", req.ID),
		zap.String("package", pkg.ID),
		zap.String("contact", req.ContactNumber),
		zap.String("source_addr", req.SourceAddr),
	)

	// Notification failure is degraded-but-recoverable: the account and
	// record exist, the admin just has to find the request another way.
	if err := o.notifier.Notify(ctx, req); err != nil {
		o.logger.Warn("admin notification failed, request stays pending",
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
	}

	return req, nil
}

// provision creates the disabled account and the backing record.
// Account creation precedes record creation so a controller failure
// cannot leave a record without a backing account.
func (o *Orchestrator) provision(ctx context.Context, pkg Package, in SubmitInput, sourceAddr string) (*store.Request, error) {
	for attempt := 1; attempt <= maxProvisionAttempts; attempt++ {
		username, password, err := o.generator.Generate()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		err = o.controller.CreateDisabledUser(callCtx, mikrotik.User{
			Name:     username,
			Password: password,
			Profile:  pkg.Profile(),
			Comment:  fmt.Sprintf("pending | %s | %s", in.ContactNumber, pkg.ID),
		})
		cancel()

		if errors.Is(err, mikrotik.ErrUserExists) {
			o.logger.Info("username collision, regenerating",
				zap.String("username", username),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
		}

		req := &store.Request{
			ID:            username,
			Username:      username,
			Password:      password,
			Package:       pkg.ID,
			ContactNumber: in.ContactNumber,
			ProofRef:      in.ProofRef,
			SourceAddr:    sourceAddr,
			Status:        store.StatusPending,
			CreatedAt:     time.Now(),
		}

		err = o.store.Put(req)
		if errors.Is(err, store.ErrDuplicateID) {
			// A stale record holds this id even though the router
			// accepted the name. Undo the account and try a new pair.
			o.removeAccount(ctx, username)
			continue
		}
		if err != nil {
			o.removeAccount(ctx, username)
			return nil, fmt.Errorf("failed to persist pending request: %w", err)
		}

		return req, nil
	}

	return nil, fmt.Errorf("%w: exhausted %d attempts", ErrProvisioningFailed, maxProvisionAttempts)
}

// HandleEvent applies an admin decision. Unresolvable events mutate
// nothing and surface the store error; decisions on already-decided
// requests are benign duplicates and succeed as no-ops.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev Event) (*Decision, error) {
	req, err := o.store.FindByCorrelation(ev.Correlation)
	if err != nil {
		o.logger.Warn("approval event dropped: unresolvable",
			zap.String("action", string(ev.Action)),
			zap.String("request_id", ev.Correlation.RequestID),
			zap.Error(err),
		)
		return nil, err
	}

	if req.Status.Terminal() {
		o.logger.Info("duplicate approval event ignored",
			zap.String("request_id", req.ID),
			zap.String("status", string(req.Status)),
		)
		return &Decision{Request: req}, nil
	}

	switch ev.Action {
	case ActionApprove:
		return o.approve(ctx, req)
	case ActionReject:
		return o.reject(req)
	default:
		return nil, fmt.Errorf("unknown approval action %q", ev.Action)
	}
}

// approve enables the account and records the transition. The approval
// is not considered applied until the account is actually enabled, so
// any controller failure leaves the request pending for retry.
func (o *Orchestrator) approve(ctx context.Context, req *store.Request) (*Decision, error) {
	pkg, ok := PackageByID(req.Package)
	if !ok {
		return nil, fmt.Errorf("stored request %s has %w: %q", req.ID, ErrInvalidPackage, req.Package)
	}

	now := time.Now()
	expiresAt := pkg.ExpiryFrom(now)

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	err := o.controller.ScheduleExpiry(callCtx, req.Username, expiresAt)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to schedule expiry for %s: %w", req.Username, err)
	}

	callCtx, cancel = context.WithTimeout(ctx, o.callTimeout)
	err = o.controller.SetEnabled(callCtx, req.Username, true)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to enable account %s: %w", req.Username, err)
	}

	comment := fmt.Sprintf("%s | %s | %s", req.ContactNumber, expiresAt.Format("2006-01-02 15:04"), req.Package)
	callCtx, cancel = context.WithTimeout(ctx, o.callTimeout)
	if err := o.controller.SetComment(callCtx, req.Username, comment); err != nil {
		o.logger.Warn("failed to update account comment",
			zap.String("username", req.Username),
			zap.Error(err),
		)
	}
	cancel()

	if err := o.store.UpdateStatus(req.ID, store.StatusApproved); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// A concurrent delivery won the race after we enabled the
			// account; the end state is identical.
			o.logger.Info("approval raced with another decision", zap.String("request_id", req.ID))
			decided, getErr := o.store.Get(req.ID)
			if getErr != nil {
				return nil, getErr
			}
			return &Decision{Request: decided, ExpiresAt: expiresAt}, nil
		}
		return nil, fmt.Errorf("account enabled but status update failed: %w", err)
	}

	req.Status = store.StatusApproved
	req.DecidedAt = &now

	o.logger.Info("request approved",
		zap.String("request_id", req.ID),
		zap.String("package", req.Package),
		zap.Time("expires_at", expiresAt),
	)

	return &Decision{Request: req, ExpiresAt: expiresAt}, nil
}

// reject marks the request rejected. The disabled account is left in
// place for audit; it never authenticates.
func (o *Orchestrator) reject(req *store.Request) (*Decision, error) {
	if err := o.store.UpdateStatus(req.ID, store.StatusRejected); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			decided, getErr := o.store.Get(req.ID)
			if getErr != nil {
				return nil, getErr
			}
			return &Decision{Request: decided}, nil
		}
		return nil, err
	}

	now := time.Now()
	req.Status = store.StatusRejected
	req.DecidedAt = &now

	o.logger.Info("request rejected", zap.String("request_id", req.ID))

	return &Decision{Request: req}, nil
}

// removeAccount is best-effort cleanup of a just-created account.
func (o *Orchestrator) removeAccount(ctx context.Context, username string) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	if err := o.controller.RemoveUser(callCtx, username); err != nil {
		o.logger.Warn("failed to clean up orphaned account",
			zap.String("username", username),
			zap.Error(err),
		)
	}
}
