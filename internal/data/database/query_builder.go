// Package database builds parameterized SELECT statements from typed conditions.
package database

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

type ConditionType string

const (
	Equal              ConditionType = "="
	NotEqual           ConditionType = "!="
	GreaterThan        ConditionType = ">"
	LessThan           ConditionType = "<"
	LessThanOrEqual    ConditionType = "<="
	GreaterThanOrEqual ConditionType = ">="
	In                 ConditionType = "IN"
	IsNull             ConditionType = "IS NULL"
	IsNotNull          ConditionType = "IS NOT NULL"
	Custom             ConditionType = "CUSTOM"
	group              ConditionType = "GROUP"

	defaultLimit  = -1
	defaultOffset = -1
)

// Conjunction joins the members of a condition group.
type Conjunction string

const (
	And Conjunction = "AND"
	Or  Conjunction = "OR"
)

// Condition is one predicate or a parenthesized group of predicates.
type Condition struct {
	Field    string
	Type     ConditionType
	Value    any
	rawQuery *string
	join     Conjunction
	members  []Condition
}

// WhereCond compares a field with a bound value. IsNull and IsNotNull ignore value.
func WhereCond(field string, condType ConditionType, value any) Condition {
	if condType == Custom || condType == group {
		//nolint:forbidigo // panic prevents misuse; raw SQL goes through WhereRawCond.
		panic("use WhereRawCond or AnyOf/AllOf for " + string(condType))
	}
	return Condition{Field: field, Type: condType, Value: value}
}

// WhereRawCond adds raw SQL whose $1..$n placeholders refer to params and are renumbered
// into the statement's parameter sequence.
func WhereRawCond(rawQuery string, params ...any) Condition {
	q := rawQuery
	return Condition{Type: Custom, rawQuery: &q, Value: params}
}

// AnyOf groups conditions joined by OR.
func AnyOf(conds ...Condition) Condition {
	return Condition{Type: group, join: Or, members: conds}
}

// AllOf groups conditions joined by AND.
func AllOf(conds ...Condition) Condition {
	return Condition{Type: group, join: And, members: conds}
}

type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	OrderBy    []string
	OrderDir   string
	Limit      int
	Offset     int
	// FieldMap translates logical field names used in conditions and ordering into columns.
	// Fields missing from a non-nil map are rejected.
	FieldMap map[string]string
}

type ListQueryOption func(*ListQueryOptions)

func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{
		Table:  table,
		Limit:  defaultLimit,
		Offset: defaultOffset,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithColumns sets the columns to select.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) { o.Columns = cols }
}

// WithCondition appends a condition.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = append(o.Conditions, cond) }
}

// WithConditions replaces the condition list.
func WithConditions(conds ...Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = conds }
}

// WithOrderBy sets the ordering columns, applied in order, and a direction for all of them.
func WithOrderBy(direction string, columns ...string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = columns
		o.OrderDir = direction
	}
}

// WithLimit sets the limit. Accepts 0.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the offset. Accepts 0.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly selects COUNT(*) and drops ordering and pagination.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) { o.CountOnly = true }
}

// WithFieldMap sets the logical field to column mapping.
func WithFieldMap(m map[string]string) ListQueryOption {
	return func(o *ListQueryOptions) { o.FieldMap = m }
}

// sanitizeQualifiedIdentifier quotes each part of "table.column" style identifiers.
func sanitizeQualifiedIdentifier(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}

func (o *ListQueryOptions) column(field string) string {
	if field == "" {
		return ""
	}
	if o.FieldMap != nil {
		col, ok := o.FieldMap[field]
		if !ok {
			return ""
		}
		field = col
	}
	return sanitizeQualifiedIdentifier(field)
}

func buildSelectClause(o *ListQueryOptions) string {
	if o.CountOnly {
		return "SELECT COUNT(*) "
	}
	if len(o.Columns) == 0 {
		return "SELECT * "
	}
	cols := make([]string, len(o.Columns))
	for i, c := range o.Columns {
		cols[i] = sanitizeQualifiedIdentifier(c)
	}
	return "SELECT " + strings.Join(cols, ", ") + " "
}

type whereBuilder struct {
	opts  *ListQueryOptions
	args  []any
	param int
}

func (w *whereBuilder) bind(v any) string {
	w.args = append(w.args, v)
	w.param++
	return "$" + strconv.Itoa(w.param)
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

func (w *whereBuilder) condition(c Condition) string {
	switch c.Type {
	case group:
		parts := make([]string, 0, len(c.members))
		for _, m := range c.members {
			if s := w.condition(m); s != "" {
				parts = append(parts, s)
			}
		}
		switch len(parts) {
		case 0:
			return ""
		case 1:
			return parts[0]
		default:
			return "(" + strings.Join(parts, " "+string(c.join)+" ") + ")"
		}
	case Custom:
		return w.custom(c)
	}

	col := w.opts.column(c.Field)
	if col == "" {
		return ""
	}
	switch c.Type {
	case IsNull, IsNotNull:
		return col + " " + string(c.Type)
	case In:
		rv := reflect.ValueOf(c.Value)
		if rv.Kind() != reflect.Slice || rv.Len() == 0 {
			return ""
		}
		placeholders := make([]string, rv.Len())
		for i := range rv.Len() {
			placeholders[i] = w.bind(rv.Index(i).Interface())
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", "))
	case Equal, NotEqual, GreaterThan, LessThan, LessThanOrEqual, GreaterThanOrEqual:
		return fmt.Sprintf("%s %s %s", col, c.Type, w.bind(c.Value))
	}
	return ""
}

// custom renumbers $n placeholders of a raw condition. Repeated placeholders bind once.
func (w *whereBuilder) custom(c Condition) string {
	if c.rawQuery == nil || strings.TrimSpace(*c.rawQuery) == "" {
		return ""
	}
	params, _ := c.Value.([]any)
	assigned := make(map[int]string)
	return "(" + placeholderRe.ReplaceAllStringFunc(*c.rawQuery, func(m string) string {
		n, err := strconv.Atoi(m[1:])
		if err != nil || n < 1 || n > len(params) {
			return m
		}
		if p, ok := assigned[n]; ok {
			return p
		}
		p := w.bind(params[n-1])
		assigned[n] = p
		return p
	}) + ")"
}

// BuildListQuery renders options into a statement and its positional arguments.
//
//	q, args := BuildListQuery(NewListQueryOptions("jobs",
//		WithCondition(WhereCond("submitter", Equal, 870970)),
//		WithCondition(AnyOf(WhereCond("sink_id", Equal, 3), WhereCond("sink_id", Equal, 4))),
//		WithOrderBy("DESC", "created_at", "id"),
//		WithLimit(50),
//	))
//	// SELECT * FROM "jobs" WHERE "submitter" = $1 AND ("sink_id" = $2 OR "sink_id" = $3)
//	//   ORDER BY "created_at" DESC, "id" DESC LIMIT $4
func BuildListQuery(o *ListQueryOptions) (string, []any) {
	if o == nil {
		return "", nil
	}
	var q strings.Builder
	q.WriteString(buildSelectClause(o))
	q.WriteString("FROM ")
	q.WriteString(sanitizeQualifiedIdentifier(o.Table))

	w := &whereBuilder{opts: o}
	parts := make([]string, 0, len(o.Conditions))
	for _, c := range o.Conditions {
		if s := w.condition(c); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(parts, " AND "))
	}
	if o.CountOnly {
		return q.String(), w.args
	}

	if len(o.OrderBy) > 0 {
		dir := strings.ToUpper(o.OrderDir)
		if dir != "ASC" && dir != "DESC" {
			dir = ""
		}
		cols := make([]string, 0, len(o.OrderBy))
		for _, f := range o.OrderBy {
			col := o.column(f)
			if col == "" {
				continue
			}
			if dir != "" {
				col += " " + dir
			}
			cols = append(cols, col)
		}
		if len(cols) > 0 {
			q.WriteString(" ORDER BY ")
			q.WriteString(strings.Join(cols, ", "))
		}
	}
	if o.Limit != defaultLimit {
		q.WriteString(" LIMIT ")
		q.WriteString(w.bind(o.Limit))
	}
	if o.Offset != defaultOffset {
		q.WriteString(" OFFSET ")
		q.WriteString(w.bind(o.Offset))
	}
	return q.String(), w.args
}
