package events_processor

import (
	"encoding/json"
	"fmt"

	"github.com/getlago/lago-expression/expression-go"

	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/utils"
)

type expressionInput struct {
	Code       string         `json:"code"`
	Timestamp  float64        `json:"timestamp"`
	Properties map[string]any `json:"properties"`
}

// EvaluateExpression stores the result of the custom expression of the
// billable metric in the event properties, under the metric field name.
func EvaluateExpression(event *models.Event, bm *models.BillableMetric) utils.Result[bool] {
	if bm == nil || bm.Expression == "" {
		return utils.SuccessResult(false)
	}

	eventJson, err := json.Marshal(expressionInput{
		Code:       event.Code,
		Timestamp:  float64(event.Timestamp.Unix()),
		Properties: event.Properties,
	})
	if err != nil {
		return utils.FailedBoolResult(err).NonRetryable()
	}
	eventJsonString := string(eventJson[:])

	result := expression.Evaluate(bm.Expression, eventJsonString)
	if result == nil {
		return utils.
			FailedBoolResult(fmt.Errorf("Failed to evaluate expr: %s with json: %s", bm.Expression, eventJsonString)).
			NonRetryable()
	}

	if event.Properties == nil {
		event.Properties = map[string]any{}
	}
	event.Properties[bm.FieldName] = *result

	return utils.SuccessResult(true)
}
