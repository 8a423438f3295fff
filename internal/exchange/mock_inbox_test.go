// Code generated by hand in the shape mockgen would emit for Inbox; see
// DESIGN.md's "Testing tooling" entry.
//
//go:generate mockgen -destination=mock_inbox_test.go -package=exchange github.com/crgp/crgp/internal/exchange Inbox

package exchange

import (
	reflect "reflect"

	gomock "github.com/golang/mock/gomock"
)

// MockInbox is a mock of the Inbox interface.
type MockInbox struct {
	ctrl     *gomock.Controller
	recorder *MockInboxMockRecorder
}

// MockInboxMockRecorder is the mock recorder for MockInbox.
type MockInboxMockRecorder struct {
	mock *MockInbox
}

// NewMockInbox creates a new mock instance.
func NewMockInbox(ctrl *gomock.Controller) *MockInbox {
	mock := &MockInbox{ctrl: ctrl}
	mock.recorder = &MockInboxMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockInbox) EXPECT() *MockInboxMockRecorder {
	return m.recorder
}

// Deliver mocks base method.
func (m *MockInbox) Deliver(env Envelope) ([]byte, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Deliver", env)
	ret0, _ := ret[0].([]byte)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Deliver indicates an expected call of Deliver.
func (mr *MockInboxMockRecorder) Deliver(env interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Deliver", reflect.TypeOf((*MockInbox)(nil).Deliver), env)
}
