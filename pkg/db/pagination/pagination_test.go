package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "12", CreatedAt: "2026-01-02T03:04:05Z"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, "12", cursor.ID)

	_, err = DecodeCursor("%%%")
	require.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	a, b, c := 1, 2, 3
	rows := []*int{&a, &b, &c}

	info, page := BuildCursorPageInfo(rows, 2, func(v *int) string { return string(rune('0' + *v)) })
	require.True(t, info.HasMore)
	require.Equal(t, "2", info.NextPageToken)
	require.Len(t, page, 2)

	info, page = BuildCursorPageInfo(rows, 5, func(*int) string { return "x" })
	require.False(t, info.HasMore)
	require.Len(t, page, 3)
}

func TestLimit(t *testing.T) {
	require.Equal(t, DefaultPageSize, Pagination{}.Limit())
	require.Equal(t, MaxPageSize, Pagination{PageSize: 900}.Limit())
	require.Equal(t, 10, Pagination{PageSize: 10}.Limit())
}
