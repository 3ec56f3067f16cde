package httpx

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	apperrors "github.com/target/dataio-go/internal/errors"
)

var jobSortFields = map[string]struct{}{
	"created_at":      {},
	"id":              {},
	"number_of_items": {},
}

// ParseJobListQuery turns GET /api/jobs query parameters into list options.
// Unknown sort fields and malformed values are rejected rather than ignored.
func ParseJobListQuery(q url.Values) (model.JobListOptions, error) {
	var opts model.JobListOptions
	var err error

	if opts.Submitter, err = optInt64(q, "submitter"); err != nil {
		return opts, err
	}
	if opts.SinkID, err = optInt64(q, "sink_id"); err != nil {
		return opts, err
	}
	if opts.HarvesterID, err = optInt64(q, "harvester_id"); err != nil {
		return opts, err
	}
	if v := strings.TrimSpace(q.Get("completed")); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return opts, apperrors.ValidationField("completed", "completed must be true or false")
		}
		opts.Completed = &b
	}
	if opts.CreatedFrom, err = optTime(q, "created_from"); err != nil {
		return opts, err
	}
	if opts.CreatedTo, err = optTime(q, "created_to"); err != nil {
		return opts, err
	}
	if v := strings.TrimSpace(q.Get("min_items")); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil || n < 0 {
			return opts, apperrors.ValidationField("min_items", "min_items must be a non-negative integer")
		}
		opts.MinItems = &n
	}
	if v := strings.TrimSpace(q.Get("exclude_kind")); v != "" {
		k := model.JobKind(strings.ToUpper(v))
		if !k.Valid() {
			return opts, apperrors.ValidationField("exclude_kind", "unknown job kind")
		}
		opts.ExcludeKind = &k
	}
	if v := strings.TrimSpace(q.Get("phase")); v != "" {
		p, perr := state.ParsePhase(v)
		if perr != nil {
			return opts, apperrors.ValidationField("phase", perr.Error())
		}
		opts.Phase = p
	}

	if opts.SortBy, opts.SortOrder, err = parseSort(q, jobSortFields); err != nil {
		return opts, err
	}

	opts.Limit, opts.Offset = jobPage.parse(q)
	return opts, nil
}

// EncodeJobListQuery is the inverse of ParseJobListQuery.
func EncodeJobListQuery(opts model.JobListOptions) url.Values {
	q := url.Values{}
	setInt64 := func(key string, v *int64) {
		if v != nil {
			q.Set(key, strconv.FormatInt(*v, 10))
		}
	}
	setTime := func(key string, v *time.Time) {
		if v != nil {
			q.Set(key, v.UTC().Format(time.RFC3339Nano))
		}
	}

	setInt64("submitter", opts.Submitter)
	setInt64("sink_id", opts.SinkID)
	setInt64("harvester_id", opts.HarvesterID)
	if opts.Completed != nil {
		q.Set("completed", strconv.FormatBool(*opts.Completed))
	}
	setTime("created_from", opts.CreatedFrom)
	setTime("created_to", opts.CreatedTo)
	if opts.MinItems != nil {
		q.Set("min_items", strconv.Itoa(*opts.MinItems))
	}
	if opts.ExcludeKind != nil {
		q.Set("exclude_kind", string(*opts.ExcludeKind))
	}
	if opts.Phase != "" {
		q.Set("phase", string(opts.Phase))
	}
	if opts.SortBy != "" {
		q.Set("sort", opts.SortBy)
	}
	if opts.SortOrder != "" {
		q.Set("dir", opts.SortOrder)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	return q
}

func optInt64(q url.Values, key string) (*int64, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil //nolint:nilnil // absent filter
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperrors.ValidationField(key, key+" must be an integer")
	}
	return &n, nil
}

func optTime(q url.Values, key string) (*time.Time, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil //nolint:nilnil // absent filter
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, apperrors.ValidationField(key, key+" must be an RFC 3339 timestamp")
	}
	return &t, nil
}
