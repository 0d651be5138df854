// Package mocks provides test doubles for the gsheets client.
package mocks

import (
	"context"

	gsheets "github.com/sells-group/wallet-search-cli/pkg/gsheets"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// SheetID provides a mock function with given fields: ctx, spreadsheetID, title
func (_m *MockClient) SheetID(ctx context.Context, spreadsheetID string, title string) (int64, error) {
	ret := _m.Called(ctx, spreadsheetID, title)

	if len(ret) == 0 {
		panic("no return value specified for SheetID")
	}

	var r0 int64
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (int64, error)); ok {
		return rf(ctx, spreadsheetID, title)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) int64); ok {
		r0 = rf(ctx, spreadsheetID, title)
	} else {
		r0 = ret.Get(0).(int64)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, spreadsheetID, title)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// GetValues provides a mock function with given fields: ctx, spreadsheetID, a1Range
func (_m *MockClient) GetValues(ctx context.Context, spreadsheetID string, a1Range string) ([][]string, error) {
	ret := _m.Called(ctx, spreadsheetID, a1Range)

	if len(ret) == 0 {
		panic("no return value specified for GetValues")
	}

	var r0 [][]string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) ([][]string, error)); ok {
		return rf(ctx, spreadsheetID, a1Range)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) [][]string); ok {
		r0 = rf(ctx, spreadsheetID, a1Range)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([][]string)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, spreadsheetID, a1Range)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// UpdateValues provides a mock function with given fields: ctx, spreadsheetID, vr
func (_m *MockClient) UpdateValues(ctx context.Context, spreadsheetID string, vr gsheets.ValueRange) error {
	ret := _m.Called(ctx, spreadsheetID, vr)

	if len(ret) == 0 {
		panic("no return value specified for UpdateValues")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, gsheets.ValueRange) error); ok {
		r0 = rf(ctx, spreadsheetID, vr)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// BatchUpdateValues provides a mock function with given fields: ctx, spreadsheetID, data
func (_m *MockClient) BatchUpdateValues(ctx context.Context, spreadsheetID string, data []gsheets.ValueRange) error {
	ret := _m.Called(ctx, spreadsheetID, data)

	if len(ret) == 0 {
		panic("no return value specified for BatchUpdateValues")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, []gsheets.ValueRange) error); ok {
		r0 = rf(ctx, spreadsheetID, data)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// InsertColumn provides a mock function with given fields: ctx, spreadsheetID, sheetID, index
func (_m *MockClient) InsertColumn(ctx context.Context, spreadsheetID string, sheetID int64, index int) error {
	ret := _m.Called(ctx, spreadsheetID, sheetID, index)

	if len(ret) == 0 {
		panic("no return value specified for InsertColumn")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, int64, int) error); ok {
		r0 = rf(ctx, spreadsheetID, sheetID, index)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
