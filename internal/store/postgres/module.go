package postgres

import (
	"go.uber.org/fx"

	"github.com/aiwa-app/aiwa/internal/store"
)

var Module = fx.Options(
	fx.Provide(fx.Annotate(New, fx.As(new(store.Store)))),
)
