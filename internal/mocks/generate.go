// Package mocks provides gomock mocks of the repository and state store ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	jobs := mocks.NewMockJobRepository(ctrl)
//	jobs.EXPECT().GetByID(gomock.Any(), int64(7)).Return(job, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/dataio-go/internal/core JobRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=chunk_repository_mock.go github.com/target/dataio-go/internal/core ChunkRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=catalog_repository_mock.go github.com/target/dataio-go/internal/core FlowRepository,SinkRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=harvester_config_repository_mock.go github.com/target/dataio-go/internal/core HarvesterConfigRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=file_repository_mock.go github.com/target/dataio-go/internal/core FileRepository

// StateStore is served by the REST API and its HTTP client; stages and harvesters are tested against this mock.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=state_store_mock.go github.com/target/dataio-go/internal/core StateStore
