/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

// Package usb talks to the pod over its USB interrupt endpoints. The pod
// enumerates as a HID device with one interface, endpoint 0x02 out and
// 0x82 in, 64 byte reports.
package usb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/gpspod/go-gpspod/pkg/layers"
	"github.com/gpspod/go-gpspod/pkg/log"
)

const endpointNumber = 2

// ErrDeviceNotFound is returned when the pod is not connected.
type ErrDeviceNotFound struct {
	VendorID  uint16
	ProductID uint16
}

func (e ErrDeviceNotFound) Error() string {
	return fmt.Sprintf("no USB device %04x:%04x found", e.VendorID, e.ProductID)
}

// Transport implements session.Transport on a gousb device handle.
type Transport struct {
	vendorID  uint16
	productID uint16

	ctx   *gousb.Context
	dev   *gousb.Device
	intf  *gousb.Interface
	done  func()
	inEp  *gousb.InEndpoint
	outEp *gousb.OutEndpoint
}

func NewTransport(vendorID, productID uint16) *Transport {
	return &Transport{vendorID: vendorID, productID: productID}
}

func (t *Transport) Open() error {
	t.ctx = gousb.NewContext()
	dev, err := t.ctx.OpenDeviceWithVIDPID(gousb.ID(t.vendorID), gousb.ID(t.productID))
	if err != nil {
		t.ctx.Close()
		return err
	}
	if dev == nil {
		t.ctx.Close()
		return ErrDeviceNotFound{VendorID: t.vendorID, ProductID: t.productID}
	}
	t.dev = dev

	// The kernel HID driver claims the interface first.
	if err := dev.SetAutoDetach(true); err != nil {
		t.close()
		return err
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		t.close()
		return err
	}
	t.intf = intf
	t.done = done

	if t.inEp, err = intf.InEndpoint(endpointNumber); err != nil {
		t.close()
		return err
	}
	if t.outEp, err = intf.OutEndpoint(endpointNumber); err != nil {
		t.close()
		return err
	}
	log.Debug("Opened USB device %04x:%04x", t.vendorID, t.productID)
	return nil
}

func (t *Transport) close() {
	if t.done != nil {
		t.done()
		t.done = nil
		t.intf = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
}

func (t *Transport) Close() error {
	t.close()
	return nil
}

func (t *Transport) WritePacket(data []byte) error {
	n, err := t.outEp.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short USB write: %d of %d bytes", n, len(data))
	}
	return nil
}

// ReadPacket reads one interrupt report. It returns nil data when nothing
// arrived within the timeout.
func (t *Transport) ReadPacket(timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	buf := make([]byte, layers.UsbPacketSize)
	n, err := t.inEp.ReadContext(ctx, buf)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}
	return buf[:n], nil
}
