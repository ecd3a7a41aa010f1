package construct

import (
	"context"
	"strconv"
	"time"
)

// Response defaults. The handler timeout and table key are fixed.
const (
	DefaultResponseRuntime = RuntimePython311
	ResponseTimeout        = 10 * time.Second
	ResponseMemoryMB       = 128
	ResponsePartitionKey   = "response_id"
	CorsEnv                = "ENABLE_CORS"
)

// ResponseProps parameterizes a ResponseUnit.
type ResponseProps struct {
	TableName     string        `yaml:"tableName,omitempty" json:"tableName,omitempty" validate:"omitempty,tablename"`
	Code          CodeSpec      `yaml:"code" json:"code"`
	CorsEnabled   *bool         `yaml:"cors,omitempty" json:"cors,omitempty"`
	Runtime       Runtime       `yaml:"runtime,omitempty" json:"runtime,omitempty" validate:"required"`
	EntryPoint    string        `yaml:"entryPoint,omitempty" json:"entryPoint,omitempty" validate:"required"`
	Description   string        `yaml:"description,omitempty" json:"description,omitempty"`
	RemovalPolicy RemovalPolicy `yaml:"removalPolicy,omitempty" json:"removalPolicy,omitempty" validate:"oneof=destroy retain"`
}

func (p ResponseProps) withDefaults() ResponseProps {
	if p.Runtime == "" {
		p.Runtime = DefaultResponseRuntime
	}
	if p.EntryPoint == "" {
		p.EntryPoint = DefaultEntryPoint
	}
	if p.CorsEnabled == nil {
		v := true
		p.CorsEnabled = &v
	}
	if p.RemovalPolicy == "" {
		p.RemovalPolicy = RemovalDestroy
	}
	return p
}

// ResponseUnit is a table and an HTTP handler behind a proxying API.
type ResponseUnit struct {
	ID          string
	Table       TableRef
	Handler     HandlerRef
	Api         ApiRef
	Environment map[string]any
}

// ResponsePlan is a validated ResponseUnit.
type ResponsePlan struct {
	id    string
	props ResponseProps
}

// PlanResponse applies defaults to props and validates them.
func PlanResponse(id string, props ResponseProps) (*ResponsePlan, error) {
	if err := validateUnitID(id); err != nil {
		return nil, err
	}
	props = props.withDefaults()
	if err := validateStruct(id, props); err != nil {
		return nil, err
	}
	return &ResponsePlan{id: id, props: props}, nil
}

func (p *ResponsePlan) ID() string         { return p.id }
func (p *ResponsePlan) CodeSpec() CodeSpec { return p.props.Code }
func (p *ResponsePlan) Runtime() Runtime   { return p.props.Runtime }

// Props returns the props with defaults applied.
func (p *ResponsePlan) Props() ResponseProps { return p.props }

// Provision creates the unit's table, handler, write grant and API front.
func (p *ResponsePlan) Provision(ctx context.Context, eng Engine, code CodeRef) (*ResponseUnit, error) {
	props := p.props
	cors := *props.CorsEnabled

	tableID := ResourceID(p.id, "Table")
	table, err := eng.CreateTable(ctx, tableID, TableSpec{
		Name:          props.TableName,
		PartitionKey:  KeyDef{Name: ResponsePartitionKey, Type: AttributeString},
		BillingMode:   BillingPayPerRequest,
		RemovalPolicy: props.RemovalPolicy,
	})
	if err != nil {
		return nil, provisioned("CreateTable", tableID, err)
	}

	env := map[string]any{
		string(DefaultTableNameEnv): table.Name,
		CorsEnv:                     strconv.FormatBool(cors),
	}

	handlerID := ResourceID(p.id, "Handler")
	handler, err := eng.CreateComputeHandler(ctx, handlerID, HandlerSpec{
		Runtime:     props.Runtime,
		EntryPoint:  props.EntryPoint,
		Code:        code,
		Timeout:     ResponseTimeout,
		MemoryMB:    ResponseMemoryMB,
		Description: props.Description,
		Environment: env,
	})
	if err != nil {
		return nil, provisioned("CreateComputeHandler", handlerID, err)
	}

	if err := eng.Grant(ctx, handler, table, GrantWrite); err != nil {
		return nil, provisioned("Grant", handlerID, err)
	}

	var policy *CorsConfig
	if cors {
		policy = AllowAll()
	}
	apiID := ResourceID(p.id, "Api")
	api, err := eng.CreateApiFront(ctx, apiID, handler, policy)
	if err != nil {
		return nil, provisioned("CreateApiFront", apiID, err)
	}

	return &ResponseUnit{
		ID:          p.id,
		Table:       table,
		Handler:     handler,
		Api:         api,
		Environment: env,
	}, nil
}

// ApiDescription is the description given to the API front of unit id.
func ApiDescription(id string) string {
	return "Prospect API for " + id
}

// NewResponseUnit validates props, packages the handler code and
// provisions the unit.
func NewResponseUnit(ctx context.Context, eng Engine, pkg Packager, id string, props ResponseProps) (*ResponseUnit, error) {
	plan, err := PlanResponse(id, props)
	if err != nil {
		return nil, err
	}
	code, err := PackagePlan(ctx, pkg, plan)
	if err != nil {
		return nil, err
	}
	return plan.Provision(ctx, eng, code)
}
