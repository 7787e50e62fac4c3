// Code generated by hand in the shape mockgen would produce for
// cliptransfer/internal/clipboard.Clipboard. Kept hand-written (not run
// through mockgen, per this project's no-toolchain constraint) but
// otherwise follows go.uber.org/mock's generated-file conventions:
// NewMockX(ctrl), an EXPECT() recorder, and gomock.Call-based expectation
// building.
package clipboardmock

import (
	reflect "reflect"

	gomock "go.uber.org/mock/gomock"
)

// MockClipboard is a mock of the Clipboard interface.
type MockClipboard struct {
	ctrl     *gomock.Controller
	recorder *MockClipboardMockRecorder
}

// MockClipboardMockRecorder is the mock recorder for MockClipboard.
type MockClipboardMockRecorder struct {
	mock *MockClipboard
}

// NewMockClipboard creates a new mock instance.
func NewMockClipboard(ctrl *gomock.Controller) *MockClipboard {
	mock := &MockClipboard{ctrl: ctrl}
	mock.recorder = &MockClipboardMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockClipboard) EXPECT() *MockClipboardMockRecorder {
	return m.recorder
}

// GetText mocks base method.
func (m *MockClipboard) GetText() (string, bool) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetText")
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(bool)
	return ret0, ret1
}

// GetText indicates an expected call of GetText.
func (mr *MockClipboardMockRecorder) GetText() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetText", reflect.TypeOf((*MockClipboard)(nil).GetText))
}

// SetText mocks base method.
func (m *MockClipboard) SetText(text string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SetText", text)
	ret0, _ := ret[0].(error)
	return ret0
}

// SetText indicates an expected call of SetText.
func (mr *MockClipboardMockRecorder) SetText(text interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetText", reflect.TypeOf((*MockClipboard)(nil).SetText), text)
}
