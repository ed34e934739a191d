// OpenTag3D Core
// Copyright (c) 2026 The OpenTag3D Core Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of OpenTag3D Core.
//
// OpenTag3D Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// OpenTag3D Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with OpenTag3D Core.  If not, see <http://www.gnu.org/licenses/>.

package mocks

import (
	"fmt"

	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers"
	"github.com/stretchr/testify/mock"
)

// MockReader is a mock implementation of the Reader interface using testify/mock
type MockReader struct {
	mock.Mock
}

func (m *MockReader) Metadata() readers.DriverMetadata {
	args := m.Called()
	if metadata, ok := args.Get(0).(readers.DriverMetadata); ok {
		return metadata
	}
	return readers.DriverMetadata{}
}

func (m *MockReader) IDs() []string {
	args := m.Called()
	if ids, ok := args.Get(0).([]string); ok {
		return ids
	}
	return []string{}
}

func (m *MockReader) Open(device config.ReadersConnect, scanChan chan<- readers.Scan) error {
	args := m.Called(device, scanChan)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

func (m *MockReader) Close() error {
	args := m.Called()
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

func (m *MockReader) Device() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockReader) Connected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockReader) Info() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockReader) Capabilities() []readers.Capability {
	args := m.Called()
	if capabilities, ok := args.Get(0).([]readers.Capability); ok {
		return capabilities
	}
	return []readers.Capability{}
}

// SimulatePayload sends a tag payload to the provided channel.
func (*MockReader) SimulatePayload(scanChan chan<- readers.Scan, payload []byte, source string) {
	scanChan <- readers.Scan{
		Payload: payload,
		Source:  source,
	}
}

// SimulateRemoval sends a removal scan to the provided channel.
func (*MockReader) SimulateRemoval(scanChan chan<- readers.Scan, source string) {
	scanChan <- readers.Scan{Source: source}
}

// NewMockReader creates a new MockReader instance
func NewMockReader() *MockReader {
	m := &MockReader{}
	// Close may or may not be called depending on the error path
	m.On("Close").Return(nil).Maybe()
	return m
}

// SetupBasicMock configures the mock with typical default values for basic
// operations. Only Device is required; the rest depend on the caller.
func (m *MockReader) SetupBasicMock() {
	m.On("Metadata").Return(readers.DriverMetadata{
		ID:          "mock",
		Description: "Mock Reader for Testing",
	}).Maybe()
	m.On("IDs").Return([]string{"mock"}).Maybe()
	m.On("Connected").Return(true).Maybe()
	m.On("Device").Return("mock:test-device")
	m.On("Info").Return("Mock Reader Test Device").Maybe()
	m.On("Capabilities").Return([]readers.Capability{}).Maybe()
}

// MockHookReader is a MockReader that also implements the refresh and
// remaining filament hooks.
type MockHookReader struct {
	MockReader
}

func NewMockHookReader() *MockHookReader {
	m := &MockHookReader{}
	m.On("Close").Return(nil).Maybe()
	return m
}

func (m *MockHookReader) Refresh() error {
	args := m.Called()
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

func (m *MockHookReader) UpdateRemaining(grams float64) error {
	args := m.Called(grams)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// SetupHookMock configures a connected reader advertising both hooks.
func (m *MockHookReader) SetupHookMock() {
	m.SetupBasicMock()
	m.ExpectedCalls = removeCall(m.ExpectedCalls, "Capabilities")
	m.On("Capabilities").Return([]readers.Capability{
		readers.CapabilityRefresh,
		readers.CapabilityUpdateRemaining,
	}).Maybe()
}

func removeCall(calls []*mock.Call, method string) []*mock.Call {
	out := calls[:0]
	for _, c := range calls {
		if c.Method != method {
			out = append(out, c)
		}
	}
	return out
}
