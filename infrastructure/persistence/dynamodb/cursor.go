package dynamodb

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// cursorKey is the serializable form of a DynamoDB LastEvaluatedKey. Both
// key attributes are strings in every table this store owns.
type cursorKey struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
}

// encodeCursor packs a LastEvaluatedKey into an opaque page token.
func encodeCursor(lastEvaluatedKey map[string]types.AttributeValue) string {
	if lastEvaluatedKey == nil {
		return ""
	}

	pk, ok := lastEvaluatedKey[attrPK].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	sk, ok := lastEvaluatedKey[attrSK].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}

	data, err := json.Marshal(cursorKey{PK: pk.Value, SK: sk.Value})
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// decodeCursor unpacks a page token back into an ExclusiveStartKey.
func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}

	var key cursorKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("invalid cursor data: %w", err)
	}

	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: key.PK},
		attrSK: &types.AttributeValueMemberS{Value: key.SK},
	}, nil
}
