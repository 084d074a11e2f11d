package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("user_id=eq.u1")
	require.NoError(t, err)
	assert.Equal(t, Filter{Column: "user_id", Value: "u1"}, f)
	assert.Equal(t, "user_id=eq.u1", f.String())

	f, err = ParseFilter("")
	require.NoError(t, err)
	assert.True(t, f.IsZero())

	_, err = ParseFilter("user_id=gt.5")
	assert.Error(t, err)
	_, err = ParseFilter("=eq.5")
	assert.Error(t, err)
}

func TestFilter_Matches(t *testing.T) {
	f := UserFilter("u1")

	assert.True(t, f.Matches(Change{Type: Insert, Record: json.RawMessage(`{"id":"a","user_id":"u1"}`)}))
	assert.False(t, f.Matches(Change{Type: Insert, Record: json.RawMessage(`{"id":"a","user_id":"u2"}`)}))
	assert.False(t, f.Matches(Change{Type: Update, Record: json.RawMessage(`{"id":"a"}`)}))
	assert.False(t, f.Matches(Change{Type: Insert, Record: json.RawMessage(`{"id":"a","user_id":null}`)}))

	// 删除只带主键时放行，带了 user_id 则照常过滤
	assert.True(t, f.Matches(Change{Type: Delete, OldRecord: json.RawMessage(`{"id":"a"}`)}))
	assert.False(t, f.Matches(Change{Type: Delete, OldRecord: json.RawMessage(`{"id":"a","user_id":"u2"}`)}))

	assert.True(t, Filter{}.Matches(Change{Type: Insert, Record: json.RawMessage(`{}`)}))
}

func TestRouter_DispatchesOncePerChange(t *testing.T) {
	var got []Change
	r := router{
		subs: []Subscription{
			{Table: TableNotifications, Filter: UserFilter("u1")},
			{Table: TableNotifications},
			{Table: TableAssignments},
		},
		handler: func(c Change) { got = append(got, c) },
	}

	assert.True(t, r.dispatch(Change{Table: TableNotifications, Type: Insert, Record: json.RawMessage(`{"user_id":"u1"}`)}))
	assert.True(t, r.dispatch(Change{Table: TableAssignments, Type: Update, Record: json.RawMessage(`{"doctor_id":"x"}`)}))
	assert.False(t, r.dispatch(Change{Table: TableMoodLogs, Type: Insert, Record: json.RawMessage(`{"user_id":"u1"}`)}))
	assert.Len(t, got, 2)
}

func TestTablesOf_Dedupes(t *testing.T) {
	subs := []Subscription{{Table: "a"}, {Table: "b"}, {Table: "a"}}
	assert.Equal(t, []string{"a", "b"}, tablesOf(subs))
}

func TestChangeJSON_PayloadShape(t *testing.T) {
	payload := `{"table":"lab_results","type":"UPDATE","record":{"id":"l1","status":"critical"},
		"old_record":{"id":"l1","status":"pending"},"commit_timestamp":"2025-03-01T08:00:00.123456+00:00"}`

	var c Change
	require.NoError(t, json.Unmarshal([]byte(payload), &c))
	assert.Equal(t, TableLabResults, c.Table)
	assert.Equal(t, Update, c.Type)
	assert.JSONEq(t, `{"id":"l1","status":"pending"}`, string(c.OldRecord))
	assert.Equal(t, 2025, c.CommitTimestamp.Year())
}
