package fetch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fitfi/service_layer/internal/cache"
	"github.com/fitfi/service_layer/internal/domain"
	"github.com/fitfi/service_layer/internal/logging"
	"github.com/fitfi/service_layer/internal/metrics"
)

// request describes one read for the generic resolver.
type request[T any] struct {
	family string
	opts   any
	// def is returned with origin Default when every tier fails or misses.
	def T
	// get asks one tier.
	get func(ctx context.Context, src Source) (T, error)
	// found reports whether a tier produced data. Lists are always found;
	// single lookups are found when non-nil.
	found func(T) bool
}

func always[T any](T) bool { return true }

func notNil[T any](v *T) bool { return v != nil }

func resolve[T any](ctx context.Context, s *Service, req request[T]) Response[T] {
	start := time.Now()
	key := cache.Key(req.family, req.opts)
	log := s.log.WithFields(logrus.Fields{"family": req.family, "key": key})
	if id := logging.TraceID(ctx); id != "" {
		log = log.WithField("trace_id", id)
	}

	if resp, ok := fromCache[T](ctx, s, key, log); ok {
		metrics.RecordFetch(req.family, resp.Origin.String(), true, time.Since(start))
		return resp
	}
	log.Debug("cache miss")

	var resp Response[T]
	if s.dedupe {
		// Shared by every caller of key; attempt timeouts still bound it.
		shared := context.WithoutCancel(ctx)
		v, _, isShared := s.group.Do(key, func() (any, error) {
			return walk(shared, s, req, key, log), nil
		})
		resp = v.(Response[T])
		if isShared {
			resp.Data = detach(resp.Data, log)
			resp.Errors = append([]string(nil), resp.Errors...)
		}
	} else {
		resp = walk(ctx, s, req, key, log)
	}

	metrics.RecordFetch(req.family, resp.Origin.String(), false, time.Since(start))
	return resp
}

func fromCache[T any](ctx context.Context, s *Service, key string, log *logrus.Entry) (Response[T], bool) {
	entry, ok, err := s.store.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("cache read failed")
		return Response[T]{}, false
	}
	if !ok {
		return Response[T]{}, false
	}

	var data T
	if err := entry.Decode(&data); err != nil {
		log.WithError(err).Warn("discarding undecodable cache entry")
		return Response[T]{}, false
	}
	log.WithField("origin", entry.Origin).Debug("cache hit")
	return Response[T]{Data: data, Origin: entry.Origin, Cached: true}, true
}

// walk tries remote, then snapshot, then the default. Errors from each
// failed tier are recorded with a tier prefix; not-found results are soft
// misses and record nothing. A cancelled ctx stops the walk without
// recording an error or writing the cache.
func walk[T any](ctx context.Context, s *Service, req request[T], key string, log *logrus.Entry) Response[T] {
	var errs []string

	tiers := []struct {
		origin domain.Origin
		src    Source
		err    error
	}{
		{domain.OriginRemote, s.remote, s.remoteErr},
		{domain.OriginSnapshot, s.snapshot, nil},
	}

	for _, tier := range tiers {
		if tier.src == nil {
			if tier.err != nil {
				errs = append(errs, tier.origin.String()+": "+tier.err.Error())
				metrics.RecordTierFailure(req.family, tier.origin.String())
			}
			continue
		}

		data, err := req.get(ctx, tier.src)
		if err != nil {
			if ctx.Err() != nil {
				log.WithField("tier", tier.origin).Debug("caller gone, abandoning resolution")
				return Response[T]{Data: req.def, Origin: domain.OriginDefault}
			}
			errs = append(errs, tier.origin.String()+": "+err.Error())
			metrics.RecordTierFailure(req.family, tier.origin.String())
			log.WithError(err).WithField("tier", tier.origin).Warn("tier failed")
			continue
		}
		if !req.found(data) {
			log.WithField("tier", tier.origin).Debug("not found")
			continue
		}

		store(ctx, s, key, data, tier.origin, log)
		return Response[T]{Data: data, Origin: tier.origin, Errors: errs}
	}

	if len(errs) > 0 {
		log.WithField("errors", errs).Warn("serving default")
	}
	return Response[T]{Data: req.def, Origin: domain.OriginDefault, Errors: errs}
}

func store[T any](ctx context.Context, s *Service, key string, data T, origin domain.Origin, log *logrus.Entry) {
	entry, err := cache.NewEntry(key, data, origin, s.now())
	if err == nil {
		err = s.store.Set(ctx, entry)
	}
	if err != nil {
		log.WithError(err).Warn("cache write failed")
	}
}

// detach returns a deep copy of a result handed to several callers.
func detach[T any](v T, log *logrus.Entry) T {
	raw, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Warn("copy shared result failed")
		return v
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		log.WithError(err).Warn("copy shared result failed")
		return v
	}
	return out
}
