package storage

import "github.com/stretchr/testify/mock"

// MockBackend is a testify mock of Backend.
type MockBackend struct {
	mock.Mock
}

var _ Backend = (*MockBackend)(nil)

func (m *MockBackend) Exists(path string) (bool, error) {
	args := m.Called(path)
	return args.Bool(0), args.Error(1)
}

func (m *MockBackend) Move(src string, dst string) error {
	args := m.Called(src, dst)
	return args.Error(0)
}

func (m *MockBackend) RemoveAll(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockBackend) ListRefs(repoPath string) ([]string, error) {
	args := m.Called(repoPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
