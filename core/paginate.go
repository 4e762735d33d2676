// Package core provides the fundamental building blocks of the golem ODM.
// This file defines paginated reads.
package core

import (
	"context"
	"net/url"
	"strconv"
)

// PageMeta describes a page of results. Link fields are empty when the
// target page does not exist.
type PageMeta struct {
	Total           int64  `json:"total"`
	PerPage         int64  `json:"perPage"`
	CurrentPage     int64  `json:"currentPage"`
	LastPage        int64  `json:"lastPage"`
	FirstPageURL    string `json:"firstPageUrl"`
	LastPageURL     string `json:"lastPageUrl"`
	NextPageURL     string `json:"nextPageUrl,omitempty"`
	PreviousPageURL string `json:"previousPageUrl,omitempty"`
}

// Page is one page of entities and its metadata.
type Page struct {
	Items []*Entity `json:"data"`
	Meta  PageMeta  `json:"meta"`
}

// Paginate counts the matching documents and fetches one page of them.
//
// The BeforeFetch phase runs once, before the count, so filters added by
// hooks apply to both. If it aborts, an empty first page is returned without
// touching the store. A perPage below 1 uses the model's default.
func (q *Query) Paginate(ctx context.Context, page, perPage int64) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = int64(q.model.options.perPage)
	}
	ctx = q.context(ctx)
	qc := newQueryContext(q, OperationFetch)
	aborted, err := q.model.dispatch(ctx, &HookEvent{Kind: BeforeFetch, Query: qc})
	if err != nil {
		return nil, err
	}
	if aborted {
		return &Page{Items: []*Entity{}, Meta: q.pageMeta(0, 1, perPage)}, nil
	}

	total, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}
	paged := q.Clone().ForPage(page, perPage)
	items, err := paged.fetch(ctx, qc)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Meta: q.pageMeta(total, page, perPage)}, nil
}

func (q *Query) pageMeta(total, page, perPage int64) PageMeta {
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}
	meta := PageMeta{
		Total:        total,
		PerPage:      perPage,
		CurrentPage:  page,
		LastPage:     lastPage,
		FirstPageURL: q.pageLink(1),
		LastPageURL:  q.pageLink(lastPage),
	}
	if page < lastPage {
		meta.NextPageURL = q.pageLink(page + 1)
	}
	if page > 1 {
		meta.PreviousPageURL = q.pageLink(page - 1)
	}
	return meta
}

// pageLink appends the page number to the base URL, keeping any query
// string it already has.
func (q *Query) pageLink(page int64) string {
	base := q.pageURL
	if base == "" {
		base = q.model.options.pageURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?page=" + strconv.FormatInt(page, 10)
	}
	values := u.Query()
	values.Set("page", strconv.FormatInt(page, 10))
	u.RawQuery = values.Encode()
	return u.String()
}
