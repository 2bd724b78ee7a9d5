package adaptertype

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Image is the raw JSON of a descriptor's image.data. In the index it is
// stored as the native attribute of that JSON value (S for a string, M for
// an object, and so on), the layout earlier releases wrote. Binary
// attributes are read as well.
type Image []byte

func (i Image) MarshalJSON() ([]byte, error) {
	if len(i) == 0 {
		return []byte("null"), nil
	}
	return i, nil
}

func (i *Image) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*i = nil
		return nil
	}
	*i = append((*i)[:0], data...)
	return nil
}

func (i Image) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	if len(i) == 0 {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	var v any
	if err := json.Unmarshal(i, &v); err != nil {
		return nil, fmt.Errorf("image is not valid JSON: %w", err)
	}
	return attributevalue.Marshal(v)
}

func (i *Image) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch b := av.(type) {
	case nil, *types.AttributeValueMemberNULL:
		*i = nil
		return nil
	case *types.AttributeValueMemberB:
		if json.Valid(b.Value) {
			*i = append(Image(nil), b.Value...)
			return nil
		}
		raw, err := json.Marshal(b.Value)
		if err != nil {
			return err
		}
		*i = raw
		return nil
	}

	var v any
	if err := attributevalue.Unmarshal(av, &v); err != nil {
		return fmt.Errorf("unmarshal image: %w", err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("unmarshal image: %w", err)
	}
	*i = raw
	return nil
}
