package mongo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fidde/log_dashboard/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFromBSON(t *testing.T) {
	oid, _ := primitive.ObjectIDFromHex("65a1b2c3d4e5f60718293a4b")
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	dec, _ := primitive.ParseDecimal128("12.50")

	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"nil", nil, `null`},
		{"bool", true, `true`},
		{"int32", int32(7), `7`},
		{"int64", int64(-3), `-3`},
		{"float", 1.5, `1.5`},
		{"string", "x", `"x"`},
		{"object id", oid, `"65a1b2c3d4e5f60718293a4b"`},
		{"datetime", primitive.NewDateTimeFromTime(when), `"2024-01-02T03:04:05Z"`},
		{"decimal", dec, `12.50`},
		{"timestamp", primitive.Timestamp{T: 10, I: 2}, `{"t":10,"i":2}`},
		{"binary", primitive.Binary{Data: []byte("hi")}, `"aGk="`},
		{"document", bson.D{{Key: "b", Value: int32(1)}, {Key: "a", Value: "z"}}, `{"b":1,"a":"z"}`},
		{"map sorted", bson.M{"b": int32(1), "a": int32(2)}, `{"a":2,"b":1}`},
		{"array", bson.A{int32(1), "two", nil}, `[1,"two",null]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(fromBSON(tt.in).AppendJSON(nil))
			if got != tt.want {
				t.Errorf("fromBSON(%v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromBSONDecimalNonFinite(t *testing.T) {
	for _, lit := range []string{"NaN", "Infinity", "-Infinity"} {
		dec, err := primitive.ParseDecimal128(lit)
		if err != nil {
			t.Fatalf("ParseDecimal128(%s): %v", lit, err)
		}
		v := fromBSON(dec)
		if v.Kind() != models.KindString {
			t.Errorf("%s: expected string value, got %s", lit, v.AppendJSON(nil))
		}
		rec := models.NewRecord("1", models.Field{Name: "d", Value: v})
		if _, err := json.Marshal(rec); err != nil {
			t.Errorf("%s: record does not marshal: %v", lit, err)
		}
	}
}

func TestRecordFromDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	rec := recordFromDocument(bson.D{
		{Key: "timestamp", Value: int64(5)},
		{Key: "_id", Value: oid},
		{Key: "0", Value: "[1, 2]"},
	})

	if rec.ID != oid.Hex() {
		t.Errorf("expected id %s, got %s", oid.Hex(), rec.ID)
	}
	if keys := rec.Keys(); len(keys) != 2 || keys[0] != "timestamp" || keys[1] != "0" {
		t.Errorf("expected [timestamp 0], got %v", keys)
	}

	if got := recordFromDocument(bson.D{{Key: "_id", Value: "custom"}}).ID; got != "custom" {
		t.Errorf("expected string id kept, got %s", got)
	}
}

func TestToDocument(t *testing.T) {
	fields := []models.Field{
		{Name: "n", Value: models.Int(3)},
		{Name: "f", Value: models.Float(0.5)},
		{Name: "big", Value: models.Number("1e3")},
		{Name: "s", Value: models.String("x")},
		{Name: "b", Value: models.Bool(false)},
		{Name: "null", Value: models.Null()},
		{Name: "obj", Value: models.Object(models.Field{Name: "k", Value: models.Array(models.Int(1))})},
	}
	doc := toDocument(fields)

	if len(doc) != len(fields) {
		t.Fatalf("expected %d elements, got %d", len(fields), len(doc))
	}
	for i, f := range fields {
		if doc[i].Key != f.Name {
			t.Errorf("position %d: expected key %s, got %s", i, f.Name, doc[i].Key)
		}
	}
	if doc[0].Value != int64(3) {
		t.Errorf("expected int64 3, got %#v", doc[0].Value)
	}
	if doc[1].Value != 0.5 {
		t.Errorf("expected float 0.5, got %#v", doc[1].Value)
	}
	if doc[2].Value != float64(1000) {
		t.Errorf("expected float 1000, got %#v", doc[2].Value)
	}
	if doc[5].Value != nil {
		t.Errorf("expected nil, got %#v", doc[5].Value)
	}

	// Converting back yields the same values.
	back := recordFromDocument(doc)
	for _, name := range []string{"n", "s", "b", "null", "obj"} {
		want, _ := models.NewRecord("", fields...).Get(name)
		got, _ := back.Get(name)
		if !models.Equal(want, got) {
			t.Errorf("%s: round trip gave %s, want %s", name, got.AppendJSON(nil), want.AppendJSON(nil))
		}
	}
}
