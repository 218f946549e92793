package mongo

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/fidde/log_dashboard/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// recordFromDocument converts a decoded document, keeping field order.
// The _id becomes the record identifier; ObjectIDs render as hex.
func recordFromDocument(doc bson.D) *models.Record {
	rec := models.NewRecord("")
	for _, e := range doc {
		if e.Key == models.IDField {
			rec.ID = idString(e.Value)
			continue
		}
		rec.Set(e.Key, fromBSON(e.Value))
	}
	return rec
}

func idString(v interface{}) string {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case string:
		return t
	default:
		return fromBSON(v).Text()
	}
}

// fromBSON converts a BSON value into the document model. Types with no
// JSON counterpart are rendered as strings.
func fromBSON(v interface{}) models.Value {
	switch t := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return models.Null()
	case bool:
		return models.Bool(t)
	case int32:
		return models.Int(int64(t))
	case int64:
		return models.Int(t)
	case int:
		return models.Int(int64(t))
	case float64:
		return models.Float(t)
	case string:
		return models.String(t)
	case primitive.ObjectID:
		return models.String(t.Hex())
	case primitive.DateTime:
		return models.String(t.Time().UTC().Format(time.RFC3339Nano))
	case time.Time:
		return models.String(t.UTC().Format(time.RFC3339Nano))
	case primitive.Decimal128:
		// NaN and Infinity have no JSON number form.
		s := t.String()
		if models.ValidNumber(s) {
			return models.Number(s)
		}
		return models.String(s)
	case primitive.Timestamp:
		return models.Object(
			models.Field{Name: "t", Value: models.Int(int64(t.T))},
			models.Field{Name: "i", Value: models.Int(int64(t.I))},
		)
	case primitive.Binary:
		return models.String(base64.StdEncoding.EncodeToString(t.Data))
	case primitive.Regex:
		return models.String(t.String())
	case primitive.Symbol:
		return models.String(string(t))
	case primitive.JavaScript:
		return models.String(string(t))
	case bson.D:
		fields := make([]models.Field, 0, len(t))
		for _, e := range t {
			fields = append(fields, models.Field{Name: e.Key, Value: fromBSON(e.Value)})
		}
		return models.Object(fields...)
	case bson.M:
		return fromMap(t)
	case map[string]interface{}:
		return fromMap(t)
	case bson.A:
		return fromSlice(t)
	case []interface{}:
		return fromSlice(t)
	default:
		return models.String(fmt.Sprint(t))
	}
}

// toDocument converts record fields into a BSON document, keeping order.
func toDocument(fields []models.Field) bson.D {
	doc := make(bson.D, 0, len(fields))
	for _, f := range fields {
		doc = append(doc, bson.E{Key: f.Name, Value: toBSON(f.Value)})
	}
	return doc
}

// toBSON converts a document model value. Integral numbers become int64
// when they fit, every other number a float64.
func toBSON(v models.Value) interface{} {
	switch v.Kind() {
	case models.KindBool:
		b, _ := v.AsBool()
		return b
	case models.KindString:
		s, _ := v.AsString()
		return s
	case models.KindNumber:
		if n, err := strconv.ParseInt(v.Text(), 10, 64); err == nil {
			return n
		}
		f, _ := v.AsFloat()
		return f
	case models.KindObject:
		return toDocument(v.Fields())
	case models.KindArray:
		items := v.Items()
		arr := make(bson.A, len(items))
		for i, item := range items {
			arr[i] = toBSON(item)
		}
		return arr
	default:
		return nil
	}
}

func fromMap(m map[string]interface{}) models.Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]models.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, models.Field{Name: k, Value: fromBSON(m[k])})
	}
	return models.Object(fields...)
}

func fromSlice(items []interface{}) models.Value {
	out := make([]models.Value, len(items))
	for i, item := range items {
		out[i] = fromBSON(item)
	}
	return models.Array(out...)
}
