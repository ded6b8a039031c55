package dynamodb

import (
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"statbucket/application/ports"
	apperrors "statbucket/pkg/errors"
)

// valueOne is the shared placeholder for unit increments. Most adds in a
// bucket write are +1, so sharing it keeps the expression small.
const valueOne = ":one"

type renderedUpdate struct {
	expression string
	names      map[string]string
	values     map[string]types.AttributeValue
}

// renderUpdate turns a neutral update instruction into a DynamoDB update
// expression. Every attribute goes through a name placeholder: metric
// counters carry dots in their names and would otherwise be parsed as
// document paths. Attributes are rendered in sorted order so equal updates
// produce equal expressions.
func renderUpdate(update ports.Update) (*renderedUpdate, error) {
	if len(update.Set) == 0 && len(update.SetIfNotExists) == 0 && len(update.Add) == 0 {
		return nil, apperrors.NewInternal("empty update instruction", nil)
	}

	r := &renderedUpdate{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
	nextName := 0
	nextValue := 0

	name := func(attr string) string {
		placeholder := "#n" + strconv.Itoa(nextName)
		nextName++
		r.names[placeholder] = attr
		return placeholder
	}
	value := func(av types.AttributeValue) string {
		placeholder := ":v" + strconv.Itoa(nextValue)
		nextValue++
		r.values[placeholder] = av
		return placeholder
	}

	var setClauses []string
	for _, attr := range sortedKeys(update.Set) {
		av, err := attributevalue.Marshal(update.Set[attr])
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal set value")
		}
		setClauses = append(setClauses, name(attr)+" = "+value(av))
	}
	for _, attr := range sortedKeys(update.SetIfNotExists) {
		av, err := attributevalue.Marshal(update.SetIfNotExists[attr])
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal set value")
		}
		placeholder := name(attr)
		setClauses = append(setClauses, placeholder+" = if_not_exists("+placeholder+", "+value(av)+")")
	}

	var addClauses []string
	addAttrs := make([]string, 0, len(update.Add))
	for attr := range update.Add {
		addAttrs = append(addAttrs, attr)
	}
	sort.Strings(addAttrs)
	for _, attr := range addAttrs {
		delta := update.Add[attr]
		placeholder := valueOne
		if delta != 1 {
			placeholder = value(&types.AttributeValueMemberN{
				Value: strconv.FormatFloat(delta, 'f', -1, 64),
			})
		} else {
			r.values[valueOne] = &types.AttributeValueMemberN{Value: "1"}
		}
		addClauses = append(addClauses, name(attr)+" "+placeholder)
	}

	var parts []string
	if len(setClauses) > 0 {
		parts = append(parts, "SET "+strings.Join(setClauses, ", "))
	}
	if len(addClauses) > 0 {
		parts = append(parts, "ADD "+strings.Join(addClauses, ", "))
	}
	r.expression = strings.Join(parts, " ")
	return r, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
