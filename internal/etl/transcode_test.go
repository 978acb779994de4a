package etl_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
)

var sqliteCaps = etl.Capabilities{}

func TestDocumentsToRows_Flattens(t *testing.T) {
	docs := []domain.Record{
		rec(
			domain.F("_id", str("65a1f0c2e4b0a1b2c3d4e5f6")),
			domain.F("name", str("Ada")),
			domain.F("address", domain.Map(rec(
				domain.F("city", str("London")),
				domain.F("geo", domain.Map(rec(domain.F("lat", domain.Float(51.5))))),
			))),
			domain.F("tags", domain.List(str("a"), str("b"))),
		),
	}
	tc, err := etl.NewTranscoder().DocumentsToRows("people", docs, sqliteCaps)
	require.NoError(t, err)
	require.Len(t, tc.Records, 1)

	assert.Equal(t, []string{"_id", "name", "address_city", "address_geo_lat", "tags"}, tc.Schema.ColumnNames())
	row := tc.Records[0]
	tags, _ := row.Get("tags")
	assert.Equal(t, `["a","b"]`, tags.AsString())
	lat, _ := row.Get("address_geo_lat")
	assert.Equal(t, 51.5, lat.AsFloat())
}

func TestDocumentsToRows_UniformRows(t *testing.T) {
	docs := []domain.Record{
		rec(domain.F("a", num(1))),
		rec(domain.F("b", str("x"))),
	}
	tc, err := etl.NewTranscoder().DocumentsToRows("t", docs, sqliteCaps)
	require.NoError(t, err)
	require.Len(t, tc.Records, 2)
	for _, r := range tc.Records {
		assert.Equal(t, []string{"a", "b"}, r.Names())
	}
	b, _ := tc.Records[0].Get("b")
	assert.True(t, b.IsNull())
}

func TestDocumentsToRows_WidensMixedKinds(t *testing.T) {
	docs := []domain.Record{
		rec(domain.F("n", num(1)), domain.F("m", num(1))),
		rec(domain.F("n", domain.Float(2.5)), domain.F("m", str("two"))),
	}
	tc, err := etl.NewTranscoder().DocumentsToRows("t", docs, sqliteCaps)
	require.NoError(t, err)

	assert.Equal(t, domain.KindFloat, tc.Schema.Columns[0].Kind)
	assert.Equal(t, domain.KindString, tc.Schema.Columns[1].Kind)
	n, _ := tc.Records[0].Get("n")
	assert.Equal(t, domain.KindFloat, n.Kind())
	m, _ := tc.Records[0].Get("m")
	assert.Equal(t, "1", m.AsString())
}

func TestDocumentsToRows_SkipsEmptyDocuments(t *testing.T) {
	docs := []domain.Record{
		rec(domain.F("a", num(1))),
		{},
		rec(domain.F("nested", domain.Map(domain.Record{}))),
	}
	tc, err := etl.NewTranscoder().DocumentsToRows("t", docs, sqliteCaps)
	require.NoError(t, err)
	assert.Len(t, tc.Records, 1)
	assert.Equal(t, 2, tc.SkippedEmpty)
}

func TestDocumentsToRows_SanitizesFieldNames(t *testing.T) {
	docs := []domain.Record{rec(domain.F("first-name", str("Ada")), domain.F("e mail", str("a@x")))}
	tc, err := etl.NewTranscoder().DocumentsToRows("t", docs, sqliteCaps)
	require.NoError(t, err)
	assert.Equal(t, []string{"firstname", "email"}, tc.Schema.ColumnNames())
}

func TestDocumentsToRows_ColumnCollision(t *testing.T) {
	docs := []domain.Record{rec(domain.F("a-b", num(1)), domain.F("ab", num(2)))}
	_, err := etl.NewTranscoder().DocumentsToRows("t", docs, sqliteCaps)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSchema))
}

func TestDocumentsToRows_NestedPathCollision(t *testing.T) {
	docs := []domain.Record{rec(
		domain.F("a_b", num(1)),
		domain.F("a", domain.Map(rec(domain.F("b", num(2))))),
	)}
	_, err := etl.NewTranscoder().DocumentsToRows("t", docs, sqliteCaps)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSchema))
	assert.Contains(t, err.Error(), "a.b")
}

func TestDocumentsToRows_NestedPathCollisionAcrossDocuments(t *testing.T) {
	docs := []domain.Record{
		rec(domain.F("a_b", num(1))),
		rec(domain.F("a", domain.Map(rec(domain.F("b", num(2)))))),
	}
	_, err := etl.NewTranscoder().DocumentsToRows("t", docs, sqliteCaps)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSchema))
}

func TestDocumentsToRows_SamePathAcrossDocuments(t *testing.T) {
	docs := []domain.Record{
		rec(domain.F("a", domain.Map(rec(domain.F("b", num(1)))))),
		rec(domain.F("a", domain.Map(rec(domain.F("b", num(2)))))),
	}
	tc, err := etl.NewTranscoder().DocumentsToRows("t", docs, sqliteCaps)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b"}, tc.Schema.ColumnNames())
	v, _ := tc.Records[1].Get("a_b")
	assert.Equal(t, int64(2), v.AsInt())
}

func TestDocumentsToRows_Timestamps(t *testing.T) {
	ts := time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)
	docs := []domain.Record{rec(domain.F("at", domain.Timestamp(ts)))}

	tc, err := etl.NewTranscoder().DocumentsToRows("t", docs, sqliteCaps)
	require.NoError(t, err)
	v, _ := tc.Records[0].Get("at")
	assert.Equal(t, "2023-12-31T23:59:59Z", v.AsString())

	tc, err = etl.NewTranscoder().DocumentsToRows("t", docs, etl.Capabilities{NativeTimestamp: true})
	require.NoError(t, err)
	v, _ = tc.Records[0].Get("at")
	assert.Equal(t, domain.KindTimestamp, v.Kind())
}

func TestDocumentsToRows_BytesNeedCapability(t *testing.T) {
	docs := []domain.Record{rec(domain.F("blob", domain.Bytes([]byte{1, 2})))}

	_, err := etl.NewTranscoder().DocumentsToRows("files", docs, sqliteCaps)
	require.Error(t, err)
	var de *domain.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, domain.KindSerializationError, de.Kind)
	assert.Equal(t, "files", de.Entity)
	assert.Equal(t, domain.DocumentToTabular, de.Direction)
	assert.Contains(t, err.Error(), "blob")

	tc, err := etl.NewTranscoder().DocumentsToRows("files", docs, etl.Capabilities{Bytes: true})
	require.NoError(t, err)
	v, _ := tc.Records[0].Get("blob")
	assert.Equal(t, []byte{1, 2}, v.AsBytes())
}

func TestDocumentsToRows_NonStringID(t *testing.T) {
	docs := []domain.Record{rec(domain.F("_id", num(42)), domain.F("v", str("x")))}
	tc, err := etl.NewTranscoder().DocumentsToRows("t", docs, sqliteCaps)
	require.NoError(t, err)
	id, _ := tc.Records[0].Get("_id")
	assert.Equal(t, domain.KindString, id.Kind())
	assert.Equal(t, "42", id.AsString())
}

func TestDocumentsToRows_CustomSeparator(t *testing.T) {
	tr := &etl.Transcoder{Separator: "__", IDField: "_id"}
	docs := []domain.Record{rec(domain.F("a", domain.Map(rec(domain.F("b", num(1))))))}
	tc, err := tr.DocumentsToRows("t", docs, sqliteCaps)
	require.NoError(t, err)
	assert.Equal(t, []string{"a__b"}, tc.Schema.ColumnNames())
}

func TestRowsToDocuments_OneToOne(t *testing.T) {
	rows := []domain.Record{
		rec(domain.F("id", num(1)), domain.F("name", str("a"))),
		{},
		rec(domain.F("id", num(2)), domain.F("name", domain.Null())),
	}
	tc := etl.NewTranscoder().RowsToDocuments(rows)
	require.Len(t, tc.Records, 2)
	assert.Equal(t, 1, tc.SkippedEmpty)
	for i, want := range []domain.Record{rows[0], rows[2]} {
		assert.True(t, want.Equal(tc.Records[i]))
		assert.Equal(t, want.Names(), tc.Records[i].Names())
	}
}

func TestRowDocumentRow_RoundTrip(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	row := rec(
		domain.F("id", num(1)),
		domain.F("name", str("Ann")),
		domain.F("created_at", domain.Timestamp(created)),
	)

	docs := etl.NewTranscoder().RowsToDocuments([]domain.Record{row})
	require.Len(t, docs.Records, 1)
	assert.True(t, row.Equal(docs.Records[0]))

	back, err := etl.NewTranscoder().DocumentsToRows("people", docs.Records, sqliteCaps)
	require.NoError(t, err)
	require.Len(t, back.Records, 1)
	got := back.Records[0]
	assert.Equal(t, []string{"id", "name", "created_at"}, got.Names())

	id, _ := got.Get("id")
	assert.Equal(t, int64(1), id.AsInt())
	name, _ := got.Get("name")
	assert.Equal(t, "Ann", name.AsString())
	at, _ := got.Get("created_at")
	assert.Equal(t, "2024-01-02T03:04:05Z", at.AsString())
	parsed, err := time.Parse(time.RFC3339, at.AsString())
	require.NoError(t, err)
	assert.True(t, created.Equal(parsed))
}

func TestDocumentsToRows_ListRoundTrip(t *testing.T) {
	tags := domain.List(str("x"), str("y"))
	docs := []domain.Record{rec(domain.F("_id", str("x1")), domain.F("tags", tags))}

	tc, err := etl.NewTranscoder().DocumentsToRows("items", docs, sqliteCaps)
	require.NoError(t, err)
	require.Len(t, tc.Records, 1)
	id, _ := tc.Records[0].Get("_id")
	assert.Equal(t, "x1", id.AsString())
	text, _ := tc.Records[0].Get("tags")
	require.Equal(t, domain.KindString, text.Kind())

	back, err := etl.DecodeCanonical(text.AsString())
	require.NoError(t, err)
	assert.True(t, tags.Equal(back), "decoded %s", back)
}
