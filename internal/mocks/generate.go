// Package mocks provides gomock implementations of the internal/core ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockJobRepository(ctrl)
//	repo.EXPECT().GetStatus(gomock.Any(), "job-1").Return(model.JobStatusRunning, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/bulkmailer/internal/core JobRepository

// Transport and TransportFactory back the scheduler's send path.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=transport_mock.go github.com/target/bulkmailer/internal/core Transport,TransportFactory

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=collaborators_mock.go github.com/target/bulkmailer/internal/core AssetLookup,TemplateRepository,WebhookNotifier

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/bulkmailer/internal/core CacheRepository
