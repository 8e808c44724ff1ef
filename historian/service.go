package historian

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/absmach/sparkpipe/pkg/devicestate"
	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
	"github.com/absmach/sparkpipe/pkg/query"
	"github.com/absmach/sparkpipe/pkg/sparkplug"
	"github.com/absmach/sparkpipe/pkg/storage"
)

const autoBucket = "auto"

var (
	errAutoNeedsStart  = errors.New("auto bucket requires a start time")
	errAggNeedsBucket  = errors.New("aggregate requires a bucket interval")
	errMissingDevice   = errors.New("missing device")
	errMissingTag      = errors.New("missing tag")
	errFieldNotAllowed = errors.New("field is not available for this query")
)

type service struct {
	store  *devicestate.Store
	repo   storage.Repository
	cfg    Config
	ns     string
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the query surface over the live state store and the
// history repository. namespace prefixes the flattened topology paths.
func NewService(store *devicestate.Store, repo storage.Repository, namespace string, cfg Config, logger *slog.Logger) Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TargetRows <= 0 {
		cfg.TargetRows = query.DefaultTargetRows
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = query.DefaultMaxRows
	}
	if namespace == "" {
		namespace = sparkplug.Namespace
	}

	return &service{
		store:  store,
		repo:   repo,
		cfg:    cfg,
		ns:     namespace,
		logger: logger,
		now:    time.Now,
	}
}

func (svc *service) Topology(_ context.Context, device string) (Topology, error) {
	tree := svc.store.Snapshot()
	if device != "" {
		keys := svc.store.Lookup(device)
		if len(keys) == 0 {
			return Topology{}, fmt.Errorf("%w: device %q", pkgerrors.ErrNotFound, device)
		}
		tree = narrow(tree, keys)
	}

	topo := Topology{Tree: tree, Paths: svc.paths(tree)}
	if len(topo.Paths) == 0 && len(tree) == 0 {
		topo.Message = query.NoResults
	}

	return topo, nil
}

func narrow(tree devicestate.Topology, keys []devicestate.Key) devicestate.Topology {
	out := make(devicestate.Topology)
	for _, k := range keys {
		name := k.Device
		if k.IsNode() {
			name = devicestate.NodeScope
		}
		dev, ok := tree[k.Group][k.Node][name]
		if !ok {
			continue
		}
		if out[k.Group] == nil {
			out[k.Group] = make(map[string]map[string]devicestate.Device)
		}
		if out[k.Group][k.Node] == nil {
			out[k.Group][k.Node] = make(map[string]devicestate.Device)
		}
		out[k.Group][k.Node][name] = dev
	}

	return out
}

func (svc *service) paths(tree devicestate.Topology) []MetricPath {
	paths := make([]MetricPath, 0)
	for group, nodes := range tree {
		for node, devices := range nodes {
			for name, dev := range devices {
				prefix := svc.ns + "/" + group + "/" + node + "/" + name
				if name == devicestate.NodeScope {
					prefix = svc.ns + "/" + group + "/" + node
				}
				for tag, v := range dev.Tags {
					paths = append(paths, MetricPath{
						Path:      prefix + "/" + tag,
						Value:     v.Value,
						Timestamp: query.FormatTime(v.Timestamp, svc.cfg.Location),
						Status:    dev.Status.String(),
					})
				}
			}
		}
	}
	slices.SortFunc(paths, func(a, b MetricPath) int {
		return cmp.Compare(a.Path, b.Path)
	})

	return paths
}

func (svc *service) CurrentTime(_ context.Context) (string, error) {
	return query.FormatTime(svc.now(), svc.cfg.Location), nil
}

func (svc *service) CurrentTagValue(_ context.Context, device, tag string) (TagValue, error) {
	if device == "" {
		return TagValue{}, errors.Join(pkgerrors.ErrQueryValidation, errMissingDevice)
	}
	if tag == "" {
		return TagValue{}, errors.Join(pkgerrors.ErrQueryValidation, errMissingTag)
	}

	var (
		found bool
		key   devicestate.Key
		value devicestate.Tag
	)
	// A bare name may match the same device under several nodes; the freshest value wins.
	for _, k := range svc.store.Lookup(device) {
		v, ok := svc.store.CurrentValue(k, tag)
		if !ok {
			continue
		}
		if !found || v.Timestamp.After(value.Timestamp) {
			found, key, value = true, k, v
		}
	}
	if !found {
		return TagValue{}, fmt.Errorf("%w: tag %q on device %q", pkgerrors.ErrNotFound, tag, device)
	}

	return TagValue{
		Device:    key.String(),
		Tag:       tag,
		Value:     value.Value,
		DataType:  value.Kind.String(),
		Timestamp: query.FormatTime(value.Timestamp, svc.cfg.Location),
		Status:    svc.store.Status(key).String(),
	}, nil
}

func (svc *service) Status(ctx context.Context, req Request) (Result, error) {
	q, err := svc.build(query.StatusTable, req)
	if err != nil {
		return Result{}, err
	}

	if q.Bucketed() {
		buckets, err := svc.repo.AggregateStatuses(ctx, q)
		if err != nil {
			svc.readFailed(ctx, "status aggregate", err)

			return Result{Message: query.NoResults}, nil
		}

		return svc.bucketResult(q, buckets), nil
	}

	rows, err := svc.repo.QueryStatuses(ctx, q)
	if err != nil {
		svc.readFailed(ctx, "status query", err)

		return Result{Message: query.NoResults}, nil
	}
	rows, truncated := trim(rows, q.Limit-1)
	res := Result{Rows: make([]Row, len(rows)), Truncated: truncated}
	for i, r := range rows {
		res.Rows[i] = Row{
			Timestamp: query.FormatTime(r.Timestamp, svc.cfg.Location),
			Group:     r.Group,
			Node:      r.Node,
			Device:    r.Device,
			Status:    r.Status,
		}
	}
	if res.Empty() {
		res.Message = query.NoResults
	}

	return res, nil
}

func (svc *service) StatusCount(ctx context.Context, req Request) (uint64, error) {
	f, err := svc.filter(query.StatusTable, req)
	if err != nil {
		return 0, err
	}

	n, err := svc.repo.CountStatuses(ctx, f)
	if err != nil {
		svc.readFailed(ctx, "status count", err)

		return 0, nil
	}

	return n, nil
}

func (svc *service) TagHistory(ctx context.Context, req Request) (Result, error) {
	q, err := svc.build(query.TagTable, req)
	if err != nil {
		return Result{}, err
	}

	if q.Bucketed() {
		buckets, err := svc.repo.AggregateTags(ctx, q)
		if err != nil {
			svc.readFailed(ctx, "tag aggregate", err)

			return Result{Message: query.NoResults}, nil
		}

		return svc.bucketResult(q, buckets), nil
	}

	rows, err := svc.repo.QueryTags(ctx, q)
	if err != nil {
		svc.readFailed(ctx, "tag query", err)

		return Result{Message: query.NoResults}, nil
	}
	rows, truncated := trim(rows, q.Limit-1)
	res := Result{Rows: make([]Row, len(rows)), Truncated: truncated}
	for i, r := range rows {
		res.Rows[i] = Row{
			Timestamp: query.FormatTime(r.Timestamp, svc.cfg.Location),
			Group:     r.Group,
			Node:      r.Node,
			Device:    r.Device,
			Tag:       r.Tag,
			Value:     r.Value,
			DataType:  r.DataType,
		}
	}
	if res.Empty() {
		res.Message = query.NoResults
	}

	return res, nil
}

func (svc *service) TagHistoryCount(ctx context.Context, req Request) (uint64, error) {
	f, err := svc.filter(query.TagTable, req)
	if err != nil {
		return 0, err
	}

	n, err := svc.repo.CountTags(ctx, f)
	if err != nil {
		svc.readFailed(ctx, "tag count", err)

		return 0, nil
	}

	return n, nil
}

func (svc *service) readFailed(ctx context.Context, op string, err error) {
	svc.logger.WarnContext(ctx, "history read failed, returning empty result",
		slog.String("operation", op),
		slog.Any("error", errors.Join(pkgerrors.ErrStorageRead, err)),
	)
}

func (svc *service) bucketResult(q query.Query, buckets []query.Bucket) Result {
	buckets, truncated := trim(buckets, q.Limit-1)
	res := Result{
		Buckets:   make([]BucketRow, len(buckets)),
		Interval:  q.Bucket.String(),
		Aggregate: string(q.Aggregate),
		Truncated: truncated,
	}
	for i, b := range buckets {
		res.Buckets[i] = BucketRow{
			Bucket: query.FormatTime(b.Start, svc.cfg.Location),
			Value:  b.Value,
			Count:  b.Count,
		}
	}
	if res.Empty() {
		res.Message = query.NoResults
	}

	return res
}

// trim cuts s to n elements and reports whether anything was dropped.
// Queries ask storage for one row more than the cap to detect truncation.
func trim[T any](s []T, n int) ([]T, bool) {
	if n < 0 || len(s) <= n {
		return s, false
	}

	return s[:n], true
}

// filter combines the free-form filter with the convenience fields.
func (svc *service) filter(table query.Table, req Request) (query.Filter, error) {
	loc := svc.cfg.Location
	f, err := query.ParseFilter(req.Filter, table, loc)
	if err != nil {
		return query.Filter{}, err
	}

	if req.Device != "" {
		if k, ok := devicestate.ParseKey(req.Device); ok {
			f = f.And(
				query.Eq(query.FieldGroup, k.Group),
				query.Eq(query.FieldNode, k.Node),
				query.Eq(query.FieldDevice, k.Device),
			)
		} else {
			f = f.And(query.Eq(query.FieldDevice, req.Device))
		}
	}
	if req.Tag != "" {
		if table != query.TagTable {
			return query.Filter{}, fmt.Errorf("%w: %w: tag", pkgerrors.ErrQueryValidation, errFieldNotAllowed)
		}
		f = f.And(query.Eq(query.FieldTag, req.Tag))
	}
	if req.Status != "" {
		if table != query.StatusTable {
			return query.Filter{}, fmt.Errorf("%w: %w: status", pkgerrors.ErrQueryValidation, errFieldNotAllowed)
		}
		f = f.And(query.Eq(query.FieldStatus, strings.ToLower(req.Status)))
	}
	if req.Start != "" {
		t, err := query.ParseTime(req.Start, loc)
		if err != nil {
			return query.Filter{}, err
		}
		f = f.And(query.TimeCond(query.OpGe, t))
	}
	if req.End != "" {
		t, err := query.ParseTime(req.End, loc)
		if err != nil {
			return query.Filter{}, err
		}
		f = f.And(query.TimeCond(query.OpLt, t))
	}

	return f, nil
}

func (svc *service) build(table query.Table, req Request) (query.Query, error) {
	f, err := svc.filter(table, req)
	if err != nil {
		return query.Query{}, err
	}

	order, err := query.ParseOrder(req.Order)
	if err != nil {
		return query.Query{}, err
	}
	agg, err := query.ParseAggregate(req.Aggregate)
	if err != nil {
		return query.Query{}, err
	}

	var iv query.Interval
	switch bucket := strings.TrimSpace(strings.ToLower(req.Bucket)); bucket {
	case "":
	case autoBucket:
		start, end := f.Range()
		if start.IsZero() {
			return query.Query{}, errors.Join(pkgerrors.ErrQueryValidation, errAutoNeedsStart)
		}
		if end.IsZero() {
			end = svc.now()
		}
		iv = query.SuggestInterval(start, end, svc.cfg.TargetRows)
	default:
		if iv, err = query.ParseInterval(bucket); err != nil {
			return query.Query{}, err
		}
	}

	switch {
	case iv.IsZero() && agg != query.AggNone:
		return query.Query{}, errors.Join(pkgerrors.ErrQueryValidation, errAggNeedsBucket)
	case !iv.IsZero() && agg == query.AggNone && table == query.TagTable:
		agg = query.AggAvg
	case !iv.IsZero() && agg == query.AggNone:
		agg = query.AggCount
	}
	if table == query.StatusTable && agg != query.AggNone && agg != query.AggCount {
		return query.Query{}, fmt.Errorf("%w: %s is not supported on device status", pkgerrors.ErrQueryValidation, agg)
	}

	limit := req.Limit
	if limit <= 0 || limit > svc.cfg.MaxRows {
		limit = svc.cfg.MaxRows
	}

	return query.Query{
		Filter:    f,
		Bucket:    iv,
		Aggregate: agg,
		Order:     order,
		Limit:     limit + 1,
	}, nil
}
