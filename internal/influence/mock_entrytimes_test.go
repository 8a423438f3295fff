// Code generated by hand in the shape mockgen would emit for entryTimes; see
// DESIGN.md's "Testing tooling" entry.
//
//go:generate mockgen -destination=mock_entrytimes_test.go -package=influence github.com/crgp/crgp/internal/influence entryTimes

package influence

import (
	reflect "reflect"

	gomock "github.com/golang/mock/gomock"

	"github.com/crgp/crgp/internal/uid"
)

// MockEntryTimes is a mock of the entryTimes interface.
type MockEntryTimes struct {
	ctrl     *gomock.Controller
	recorder *MockEntryTimesMockRecorder
}

// MockEntryTimesMockRecorder is the mock recorder for MockEntryTimes.
type MockEntryTimesMockRecorder struct {
	mock *MockEntryTimes
}

// NewMockEntryTimes creates a new mock instance.
func NewMockEntryTimes(ctrl *gomock.Controller) *MockEntryTimes {
	mock := &MockEntryTimes{ctrl: ctrl}
	mock.recorder = &MockEntryTimesMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockEntryTimes) EXPECT() *MockEntryTimesMockRecorder {
	return m.recorder
}

// EntryTimestamp mocks base method.
func (m *MockEntryTimes) EntryTimestamp(cascadeID uint64, user uid.UID) (int64, bool) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "EntryTimestamp", cascadeID, user)
	ret0, _ := ret[0].(int64)
	ret1, _ := ret[1].(bool)
	return ret0, ret1
}

// EntryTimestamp indicates an expected call of EntryTimestamp.
func (mr *MockEntryTimesMockRecorder) EntryTimestamp(cascadeID, user interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "EntryTimestamp", reflect.TypeOf((*MockEntryTimes)(nil).EntryTimestamp), cascadeID, user)
}
