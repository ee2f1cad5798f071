package venue

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/oggyb/venue-match/internal/app"
	"github.com/oggyb/venue-match/internal/auth"
	svcErr "github.com/oggyb/venue-match/internal/errors"
	"github.com/oggyb/venue-match/internal/server"
)

const serviceName = "venuematch.venue.v1.VenueService"

type CheckInRequest struct {
	VenueID     string `json:"venueId"`
	IsIncognito bool   `json:"isIncognito"`
}

type CheckInResponse struct {
	VenueID     string    `json:"venueId"`
	IsIncognito bool      `json:"isIncognito"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// VenueServer is the gRPC surface for durable check-ins.
type VenueServer interface {
	CheckIn(ctx context.Context, req *CheckInRequest) (*CheckInResponse, error)
}

var serviceDesc = server.Described(grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*VenueServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckIn", Handler: server.Unary("/"+serviceName+"/CheckIn", VenueServer.CheckIn)},
	},
})

type grpcServer struct {
	svc *Service
}

func (g *grpcServer) CheckIn(ctx context.Context, req *CheckInRequest) (*CheckInResponse, error) {
	session, err := g.svc.CheckIn(ctx, auth.UserIDFrom(ctx), req.VenueID, req.IsIncognito)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &CheckInResponse{
		VenueID:     session.VenueID,
		IsIncognito: session.IsIncognito,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// Registrar ties the Venue service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Venue service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Venue service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&serviceDesc, &grpcServer{svc: NewVenueService(r.appCtx)})
}
