package database

import (
	"reflect"
	"testing"
)

func TestBuildListQuery_BasicSelect(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("jobs"))

	expected := `SELECT * FROM "jobs"`
	if query != expected {
		t.Errorf("Expected query %q, got %q", expected, query)
	}
	if len(args) != 0 {
		t.Errorf("Expected 0 args, got %d", len(args))
	}
}

func TestBuildListQuery_QualifiedColumns(t *testing.T) {
	query, _ := BuildListQuery(NewListQueryOptions("jobs", WithColumns("id", "jobs.state")))

	expected := `SELECT "id", "jobs"."state" FROM "jobs"`
	if query != expected {
		t.Errorf("Expected query %q, got %q", expected, query)
	}
}

func TestBuildListQuery_ComparisonOperators(t *testing.T) {
	tests := []struct {
		op   ConditionType
		want string
	}{
		{Equal, `SELECT * FROM "jobs" WHERE "number_of_items" = $1`},
		{NotEqual, `SELECT * FROM "jobs" WHERE "number_of_items" != $1`},
		{LessThan, `SELECT * FROM "jobs" WHERE "number_of_items" < $1`},
		{LessThanOrEqual, `SELECT * FROM "jobs" WHERE "number_of_items" <= $1`},
		{GreaterThan, `SELECT * FROM "jobs" WHERE "number_of_items" > $1`},
		{GreaterThanOrEqual, `SELECT * FROM "jobs" WHERE "number_of_items" >= $1`},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			query, args := BuildListQuery(NewListQueryOptions("jobs",
				WithCondition(WhereCond("number_of_items", tt.op, 10)),
			))
			if query != tt.want {
				t.Errorf("Expected query %q, got %q", tt.want, query)
			}
			if !reflect.DeepEqual(args, []any{10}) {
				t.Errorf("Expected args [10], got %v", args)
			}
		})
	}
}

func TestBuildListQuery_GroupsAndPagination(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("jobs",
		WithCondition(WhereCond("submitter", Equal, int64(870970))),
		WithCondition(AnyOf(
			WhereCond("sink_id", Equal, int64(3)),
			AllOf(WhereCond("sink_id", Equal, int64(4)), WhereCond("completed_at", IsNull, nil)),
		)),
		WithOrderBy("desc", "created_at", "id"),
		WithLimit(50),
		WithOffset(100),
	))

	expected := `SELECT * FROM "jobs" WHERE "submitter" = $1 AND ("sink_id" = $2 OR ("sink_id" = $3 AND "completed_at" IS NULL))` +
		` ORDER BY "created_at" DESC, "id" DESC LIMIT $4 OFFSET $5`
	if query != expected {
		t.Errorf("Expected query %q, got %q", expected, query)
	}
	want := []any{int64(870970), int64(3), int64(4), 50, 100}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("Expected args %v, got %v", want, args)
	}
}

func TestBuildListQuery_SingleMemberGroupHasNoParens(t *testing.T) {
	query, _ := BuildListQuery(NewListQueryOptions("jobs",
		WithCondition(AnyOf(WhereCond("eoj", Equal, true))),
	))
	expected := `SELECT * FROM "jobs" WHERE "eoj" = $1`
	if query != expected {
		t.Errorf("Expected query %q, got %q", expected, query)
	}
}

func TestBuildListQuery_In(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("jobs",
		WithCondition(WhereCond("kind", In, []string{"PERSISTENT", "TRANSIENT"})),
		WithCondition(WhereCond("flow_id", In, []int64{})),
	))
	expected := `SELECT * FROM "jobs" WHERE "kind" IN ($1, $2)`
	if query != expected {
		t.Errorf("Expected query %q, got %q", expected, query)
	}
	if len(args) != 2 {
		t.Errorf("Expected 2 args, got %v", args)
	}
}

func TestBuildListQuery_RawConditionRenumbered(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("jobs",
		WithCondition(WhereCond("submitter", Equal, 1)),
		WithCondition(WhereRawCond("state->'processing'->>'endDate' IS NULL OR number_of_items > $1 OR $1 = 0", 5)),
		WithLimit(10),
	))
	expected := `SELECT * FROM "jobs" WHERE "submitter" = $1 AND (state->'processing'->>'endDate' IS NULL OR number_of_items > $2 OR $2 = 0) LIMIT $3`
	if query != expected {
		t.Errorf("Expected query %q, got %q", expected, query)
	}
	if !reflect.DeepEqual(args, []any{1, 5, 10}) {
		t.Errorf("Expected args [1 5 10], got %v", args)
	}
}

func TestBuildListQuery_FieldMap(t *testing.T) {
	fields := map[string]string{"submitter": "j.submitter", "createdAt": "j.created_at"}
	query, args := BuildListQuery(NewListQueryOptions("jobs",
		WithFieldMap(fields),
		WithCondition(WhereCond("submitter", Equal, 7)),
		WithCondition(WhereCond("password; DROP TABLE jobs", Equal, "x")),
		WithOrderBy("ASC", "createdAt", "unknown"),
	))
	expected := `SELECT * FROM "jobs" WHERE "j"."submitter" = $1 ORDER BY "j"."created_at" ASC`
	if query != expected {
		t.Errorf("Expected query %q, got %q", expected, query)
	}
	if len(args) != 1 {
		t.Errorf("Expected 1 arg, got %v", args)
	}
}

func TestBuildListQuery_CountOnlyIgnoresPagination(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("jobs",
		WithCountOnly(),
		WithCondition(WhereCond("eoj", Equal, true)),
		WithOrderBy("DESC", "id"),
		WithLimit(5),
	))
	expected := `SELECT COUNT(*) FROM "jobs" WHERE "eoj" = $1`
	if query != expected {
		t.Errorf("Expected query %q, got %q", expected, query)
	}
	if len(args) != 1 {
		t.Errorf("Expected 1 arg, got %v", args)
	}
}

func TestBuildListQuery_InvalidDirectionDropped(t *testing.T) {
	query, _ := BuildListQuery(NewListQueryOptions("jobs", WithOrderBy("sideways", "id")))
	expected := `SELECT * FROM "jobs" ORDER BY "id"`
	if query != expected {
		t.Errorf("Expected query %q, got %q", expected, query)
	}
}

func TestWhereCond_PanicsOnCustom(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	_ = WhereCond("x", Custom, nil)
}
