package dbclient

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"sqlnosql/internal/domain"
)

func TestDatabaseFromURI(t *testing.T) {
	tests := map[string]string{
		"mongodb://localhost:27017":                    "",
		"mongodb://localhost:27017/":                   "",
		"mongodb://localhost:27017/shop":               "shop",
		"mongodb://u:p@h1,h2/shop?replicaSet=rs0":      "shop",
		"mongodb+srv://user:pa/ss@cluster.net/app?w=1": "app",
	}
	for uri, want := range tests {
		assert.Equal(t, want, databaseFromURI(uri), uri)
	}
}

func TestMaskURI(t *testing.T) {
	assert.Equal(t, "mongodb://u:***@h/db", maskURI("mongodb://u:secret@h/db", "secret"))
	assert.Equal(t, "mongodb://h/db", maskURI("mongodb://h/db", ""))
}

func TestFromBSON(t *testing.T) {
	oid := bson.NewObjectID()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.New()

	doc := bson.D{
		{Key: "_id", Value: oid},
		{Key: "n", Value: int32(3)},
		{Key: "at", Value: bson.NewDateTimeFromTime(at)},
		{Key: "ref", Value: bson.Binary{Subtype: bson.TypeBinaryUUID, Data: id[:]}},
		{Key: "blob", Value: bson.Binary{Subtype: bson.TypeBinaryGeneric, Data: []byte{1}}},
		{Key: "addr", Value: bson.D{{Key: "city", Value: "Oslo"}}},
		{Key: "tags", Value: bson.A{"a", int64(2), nil}},
		{Key: "gone", Value: bson.Null{}},
	}
	rec := fromBSONDoc(doc)
	require.Equal(t, []string{"_id", "n", "at", "ref", "blob", "addr", "tags", "gone"}, rec.Names())

	v, _ := rec.Get("_id")
	assert.Equal(t, oid.Hex(), v.AsString())
	v, _ = rec.Get("n")
	assert.Equal(t, int64(3), v.AsInt())
	v, _ = rec.Get("at")
	assert.True(t, at.Equal(v.AsTime()))
	v, _ = rec.Get("ref")
	assert.Equal(t, id.String(), v.AsString())
	v, _ = rec.Get("blob")
	assert.Equal(t, []byte{1}, v.AsBytes())
	v, _ = rec.Get("addr")
	city, _ := v.AsMap().Get("city")
	assert.Equal(t, "Oslo", city.AsString())
	v, _ = rec.Get("tags")
	require.Len(t, v.AsList(), 3)
	assert.True(t, v.AsList()[2].IsNull())
	v, _ = rec.Get("gone")
	assert.True(t, v.IsNull())
}

func TestToBSON_RoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := domain.NewRecord(
		domain.F("s", domain.String("x")),
		domain.F("i", domain.Int(5)),
		domain.F("f", domain.Float(0.25)),
		domain.F("b", domain.Bool(true)),
		domain.F("t", domain.Timestamp(at)),
		domain.F("raw", domain.Bytes([]byte{7})),
		domain.F("nil", domain.Null()),
		domain.F("list", domain.List(domain.Int(1), domain.String("y"))),
		domain.F("map", domain.Map(domain.NewRecord(domain.F("k", domain.String("v"))))),
	)
	doc := toBSONDoc(rec)
	assert.Equal(t, rec.Names(), docKeys(doc))
	assert.True(t, rec.Equal(fromBSONDoc(doc)))
}

func docKeys(d bson.D) []string {
	out := make([]string, len(d))
	for i, e := range d {
		out[i] = e.Key
	}
	return out
}
