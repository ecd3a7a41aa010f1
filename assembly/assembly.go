package assembly

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lex00/wetwire-crm-go/construct"
)

// Result holds the units of a composed assembly in declaration order.
type Result struct {
	Name      string
	Ingestion []*construct.IngestionUnit
	Response  *construct.ResponseUnit
}

// Option configures Compose.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used during composition.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Compose instantiates every unit of cfg on eng.
//
// It runs in three phases. All units are validated first, then every
// handler is packaged concurrently, then units are provisioned in
// declaration order. A failure in the first two phases returns before eng
// is called.
func Compose(ctx context.Context, cfg *Config, eng construct.Engine, pkg construct.Packager, opts ...Option) (*Result, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	ingestion, response, err := plan(cfg)
	if err != nil {
		return nil, err
	}

	code, err := packageAll(ctx, pkg, plansOf(ingestion, response))
	if err != nil {
		return nil, err
	}

	result := &Result{Name: cfg.Name}
	for i, p := range ingestion {
		unit, err := p.Provision(ctx, eng, code[i])
		if err != nil {
			return nil, err
		}
		o.logger.Info("unit provisioned",
			zap.String("unit", unit.ID),
			zap.String("type", "ingestion"),
		)
		result.Ingestion = append(result.Ingestion, unit)
	}
	if response != nil {
		unit, err := response.Provision(ctx, eng, code[len(ingestion)])
		if err != nil {
			return nil, err
		}
		o.logger.Info("unit provisioned",
			zap.String("unit", unit.ID),
			zap.String("type", "response"),
		)
		result.Response = unit
	}
	return result, nil
}

// Plan validates cfg and returns the unit plans without packaging or
// provisioning anything.
func Plan(cfg *Config) ([]construct.Plan, error) {
	ingestion, response, err := plan(cfg)
	if err != nil {
		return nil, err
	}
	return plansOf(ingestion, response), nil
}

func plansOf(ingestion []*construct.IngestionPlan, response *construct.ResponsePlan) []construct.Plan {
	plans := make([]construct.Plan, 0, len(ingestion)+1)
	for _, p := range ingestion {
		plans = append(plans, p)
	}
	if response != nil {
		plans = append(plans, response)
	}
	return plans
}

func plan(cfg *Config) ([]*construct.IngestionPlan, *construct.ResponsePlan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	expanded, err := cfg.Expand()
	if err != nil {
		return nil, nil, err
	}

	ingestion := make([]*construct.IngestionPlan, 0, len(expanded.Ingestion))
	for _, in := range expanded.Ingestion {
		p, err := construct.PlanIngestion(in.ID, in.IngestionProps)
		if err != nil {
			return nil, nil, err
		}
		ingestion = append(ingestion, p)
	}

	var response *construct.ResponsePlan
	if expanded.Response != nil {
		response, err = construct.PlanResponse(expanded.Response.ID, expanded.Response.ResponseProps)
		if err != nil {
			return nil, nil, err
		}
	}
	return ingestion, response, nil
}

func packageAll(ctx context.Context, pkg construct.Packager, plans []construct.Plan) ([]construct.CodeRef, error) {
	code := make([]construct.CodeRef, len(plans))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range plans {
		g.Go(func() error {
			ref, err := construct.PackagePlan(gctx, pkg, p)
			if err != nil {
				return err
			}
			code[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return code, nil
}
