package relay

// Bridges for service_test.go, which lives in the external relay_test
// package: as an in-package test it would form an import cycle through
// the bizradar provider.
var (
	NewTestStore   = newTestStore
	TestDispatcher = testDispatcher
)

func (s *Service) SetPool(p *Pool) { s.pool = p }
