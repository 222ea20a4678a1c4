// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/interviewhub/internal/app/lifecycle"
	"github.com/dalemusser/interviewhub/internal/app/lifecycle/roster"
	"github.com/dalemusser/interviewhub/internal/app/store/sessions"
	"github.com/dalemusser/interviewhub/internal/app/system/meetlink"
	"github.com/dalemusser/interviewhub/internal/app/system/ratelimit"
	"github.com/dalemusser/interviewhub/internal/app/system/tasks"
	"github.com/dalemusser/interviewhub/internal/app/system/workers"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// Services is allocated by ConnectDB and filled in by Startup, so the
// handler and shutdown hooks see the same engine and background workers.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Services      *Services
}

// Services are the long-lived components built once at startup.
type Services struct {
	Roster   *roster.Roster
	Engine   *lifecycle.Engine
	Sessions *sessions.Store
	Provider meetlink.Provisioner
	Links    *workers.LinkProvisioner
	Tasks    *tasks.Runner
	Joins    *ratelimit.JoinLimiter

	stopTracing func(context.Context) error
}
