package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/avstrong/staytrust/internal/actor"
	"github.com/avstrong/staytrust/internal/audit"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/logger"
	"github.com/avstrong/staytrust/internal/review"
	"github.com/avstrong/staytrust/internal/trust"
)

type bookingLedger interface {
	CreateBooking(ctx context.Context, a actor.Actor, input booking.CreateInput) (*booking.Booking, error)
	Booking(ctx context.Context, id string) (*booking.Booking, error)
	ChangeDates(ctx context.Context, a actor.Actor, id string, dates booking.Dates) (*booking.Booking, error)
	AcknowledgeRulesAndProceed(ctx context.Context, a actor.Actor, id string, acknowledged bool, guestRequest string) (*booking.Booking, error)
	StepUpRequired(ctx context.Context, id string) (bool, error)
	SelectPaymentMethod(ctx context.Context, a actor.Actor, id string, method booking.PaymentMethod) (*booking.Booking, error)
	MarkGuestPaymentSent(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error)
	ConfirmHostPaymentReceived(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error)
	Approve(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error)
	TransitionOnClock(ctx context.Context, a actor.Actor, id string, ev booking.ClockEvent) (*booking.Booking, error)
	Cancel(ctx context.Context, a actor.Actor, id, reason string) (*booking.Booking, error)
	ReleasePayout(ctx context.Context, a actor.Actor, id string) (*booking.Booking, error)
}

type disputeService interface {
	FileDispute(ctx context.Context, a actor.Actor, bookingID string, initiator actor.Role, reason string) (*booking.Booking, error)
	ResolveDispute(ctx context.Context, operator actor.Actor, bookingID string, outcome booking.DisputeOutcome, note string) (*booking.Booking, error)
	AddEvidence(ctx context.Context, a actor.Actor, bookingID, note, reference string) (*booking.Booking, error)
	PerformSafetyCheck(ctx context.Context, guest actor.Actor, bookingID string, satisfied bool) (*booking.Booking, error)
	ReportPaymentNotReceived(ctx context.Context, host actor.Actor, bookingID, reason string) (*booking.Booking, error)
}

type reviewCoordinator interface {
	SubmitReview(ctx context.Context, a actor.Actor, bookingID string, r booking.StructuredReview) (*review.Exchange, error)
	Reviews(ctx context.Context, viewer actor.Actor, bookingID string) (*review.Exchange, error)
}

type trustEngine interface {
	Profile(ctx context.Context, participantID string) (*trust.Profile, error)
	CreateProfile(ctx context.Context, a actor.Actor, participantID, displayName string) (*trust.Profile, error)
	RecomputeBadges(ctx context.Context, a actor.Actor, participantID string) (trust.BadgeSet, error)
	AdvanceVerificationLevel(ctx context.Context, a actor.Actor, participantID string, kind trust.EvidenceKind) (*trust.Profile, error)
}

// evidenceRecorder stands in for the identity, phone and vouch providers.
type evidenceRecorder interface {
	RecordDocumentStored(participantID string)
	RecordPhoneVerified(participantID string)
	RecordVouch(participantID, contact string)
}

type auditLog interface {
	Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

type Services struct {
	Bookings     bookingLedger
	Disputes     disputeService
	Reviews      reviewCoordinator
	Trust        trustEngine
	Verification evidenceRecorder
	Audit        auditLog
}

type Server struct {
	srv      *http.Server
	router   chi.Router
	l        *logger.Logger
	conf     Conf
	svc      Services
	validate *validator.Validate
	tracer   trace.Tracer
}

type Conf struct {
	L                 *logger.Logger
	ServerLogger      *log.Logger
	Addr              string
	ReadHeaderTimeout time.Duration
	LivenessEndpoint  string
	JWTSecret         []byte
	Tracer            trace.Tracer
}

func New(ctx context.Context, conf Conf, svc Services) (*Server, error) {
	if len(conf.JWTSecret) == 0 {
		return nil, ErrNoSecret
	}

	if conf.LivenessEndpoint == "" {
		conf.LivenessEndpoint = "/liveness"
	}

	tracer := conf.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("web")
	}

	router := chi.NewRouter()

	//nolint:exhaustruct
	srv := &http.Server{
		Addr:              conf.Addr,
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		ErrorLog:          conf.ServerLogger,
		Handler:           router,
		BaseContext: func(listener net.Listener) context.Context {
			return ctx
		},
	}

	server := &Server{
		srv:      srv,
		router:   router,
		l:        conf.L,
		conf:     conf,
		svc:      svc,
		validate: newValidator(),
		tracer:   tracer,
	}

	server.addRoutes(router)

	return server, nil
}

func (s *Server) Srv() *http.Server {
	return s.srv
}

func (s *Server) Handler() http.Handler {
	return s.router
}
