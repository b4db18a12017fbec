// Copyright 2025 LLMFinder Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package storage

import "context"

type ctxKey string

const repositoryKey ctxKey = "storage.repository"

// WithRepository attaches an open repository to ctx so command handlers
// deeper in the call chain can share one connection.
func WithRepository(ctx context.Context, repo Repository) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, repositoryKey, repo)
}

// RepositoryFromContext returns the repository attached by WithRepository.
func RepositoryFromContext(ctx context.Context) (Repository, bool) {
	if ctx == nil {
		return nil, false
	}
	repo, ok := ctx.Value(repositoryKey).(Repository)
	return repo, ok && repo != nil
}
