package application

import (
	"backoffice/internal/service/reservation/port"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// DefaultCancelRule: 待支付、在线支付、尚未付款的订单才会被自动取消
const DefaultCancelRule = `order.status == "PENDING_PAYMENT" && order.payment_method == "ONLINE" && order.payment_status != "PAID"`

// EligibilityRule 是编译后的自动取消判定表达式
type EligibilityRule struct {
	expr string
	prg  cel.Program
}

func NewEligibilityRule(expr string) (*EligibilityRule, error) {
	if expr == "" {
		expr = DefaultCancelRule
	}
	env, err := cel.NewEnv(cel.Variable("order", cel.MapType(cel.StringType, cel.StringType)))
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile cancel rule %q", expr)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("cancel rule must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "build cel program")
	}
	return &EligibilityRule{expr: expr, prg: prg}, nil
}

func (r *EligibilityRule) String() string {
	return r.expr
}

// Eligible 对订单快照求值
func (r *EligibilityRule) Eligible(o port.OrderSnapshot) (bool, error) {
	out, _, err := r.prg.Eval(map[string]any{
		"order": map[string]string{
			"id":             o.ID,
			"status":         o.Status,
			"payment_method": o.PaymentMethod,
			"payment_status": o.PaymentStatus,
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "evaluate cancel rule")
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("cancel rule returned %T", out.Value())
	}
	return b, nil
}
