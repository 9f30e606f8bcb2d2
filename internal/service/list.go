package service

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"docregistry/internal/logging"
	"docregistry/internal/model"
)

// List scans the id window for page with bounded concurrency. Ids whose
// record does not exist are skipped silently; lookup failures are logged and
// skipped. Results keep ascending id order.
func (s *documentService) List(ctx context.Context, page, limit int) (*model.DocumentPage, error) {
	ctx, span := tracer.Start(ctx, "document.list")
	defer span.End()

	page, limit = normalizePage(page, limit)

	total, err := s.registry.TotalCount(ctx)
	if err != nil {
		return nil, registryReadError(err)
	}

	out := &model.DocumentPage{
		Items:      []model.DocumentSummary{},
		Pagination: paginate(page, limit, total),
	}

	start, end, ok := window(page, limit, total)
	if !ok {
		return out, nil
	}

	n := int(end - start + 1)
	slots := make([]*model.DocumentSummary, n)
	log := logging.FromContext(ctx, s.log)

	var g errgroup.Group
	g.SetLimit(s.listParallelism)
	for i := 0; i < n; i++ {
		i := i
		id := start + uint64(i)
		g.Go(func() error {
			rec, err := s.registry.RecordByID(ctx, id)
			if err != nil {
				s.metrics.skipped()
				log.Warn("listing lookup failed", slog.Uint64("document_id", id), slog.Any("error", err))
				return nil
			}
			if !rec.Exists {
				return nil
			}
			slots[i] = &model.DocumentSummary{
				ID:        strconv.FormatUint(rec.ID, 10),
				DocHash:   rec.DocHash.Hex(),
				CreatedAt: rec.CreatedAtMillis,
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, it := range slots {
		if it != nil {
			out.Items = append(out.Items, *it)
		}
	}
	return out, nil
}

// normalizePage clamps page to >= 1 and limit to [1, maxPageLimit]; limit 0 means the default.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit == 0:
		limit = defaultPageLimit
	case limit < 1:
		limit = 1
	case limit > maxPageLimit:
		limit = maxPageLimit
	}
	return page, limit
}

func paginate(page, limit int, total uint64) model.Pagination {
	l := uint64(limit)
	totalPages := total / l
	if total%l != 0 {
		totalPages++
	}
	_, end, ok := window(page, limit, total)
	return model.Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    ok && end < total,
		HasPrev:    page > 1,
	}
}

// window returns the 1-based inclusive id range of page; ok is false when it lies past total.
func window(page, limit int, total uint64) (start, end uint64, ok bool) {
	l := uint64(limit)
	skipped := uint64(page - 1)
	if total == 0 || skipped >= (total+l-1)/l {
		return 0, 0, false
	}
	start = skipped*l + 1
	end = start + l - 1
	if end > total {
		end = total
	}
	return start, end, true
}
