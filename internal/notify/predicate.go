package notify

import (
	"fmt"
	"strings"

	"webhook-dispatcher/internal/models"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// CompilePredicate builds a Predicate from a boolean expr-lang expression.
// The expression sees:
//
//	webhook.id, webhook.uri, webhook.description, webhook.filters,
//	webhook.headers, webhook.properties, user
//
// An empty expression yields a nil Predicate. Evaluation errors reject
// the webhook.
func CompilePredicate(expression string) (Predicate, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil
	}
	program, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile notification condition: %w", err)
	}
	return func(w *models.WebHook, user string) bool {
		ok, err := evaluate(program, w, user)
		return err == nil && ok
	}, nil
}

func evaluate(program *vm.Program, w *models.WebHook, user string) (bool, error) {
	properties := w.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	headers := w.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	env := map[string]any{
		"webhook": map[string]any{
			"id":          w.ID,
			"uri":         w.WebHookURI,
			"description": w.Description,
			"filters":     w.Filters,
			"headers":     headers,
			"properties":  properties,
		},
		"user": user,
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("notification condition did not return bool")
	}
	return b, nil
}
