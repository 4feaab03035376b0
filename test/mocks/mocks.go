// test/mocks/mocks.go

// Package mocks contains generated mocks for the application's interfaces.
// To regenerate mocks, run `go generate ./test/mocks`.
package mocks

//go:generate mockgen -source=../../internal/core/ports/repositories.go -destination=repositories_mock.go -package=mocks
//go:generate mockgen -source=../../internal/core/ports/services.go -destination=services_mock.go -package=mocks
//go:generate mockgen -source=../../internal/core/ports/cache.go -destination=cache_mock.go -package=mocks
//go:generate mockgen -source=../../internal/core/ports/database.go -destination=database_mock.go -package=mocks
//go:generate mockgen -source=../../internal/core/ports/queue.go -destination=queue_mock.go -package=mocks
//go:generate mockgen -source=../../internal/core/ports/storage.go -destination=storage_mock.go -package=mocks
