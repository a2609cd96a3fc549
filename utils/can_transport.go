package utils

import (
	"context"
	"fmt"
	"net"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// CANWriter transmits frames toward the hardware abstraction layer.
type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// CANReader receives frames from the hardware abstraction layer.
type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

// SocketCANBus is a CANWriter/CANReader pair on one SocketCAN interface.
type SocketCANBus struct {
	txConn net.Conn
	rxConn net.Conn
	tx     *socketcan.Transmitter
	rx     *socketcan.Receiver
}

// DialSocketCAN opens transmit and receive connections on the given interface
// (e.g. "can0", "vcan0").
func DialSocketCAN(ctx context.Context, iface string) (*SocketCANBus, error) {
	txConn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial (tx): %w", err)
	}
	rxConn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		_ = txConn.Close()
		return nil, fmt.Errorf("socketcan dial (rx): %w", err)
	}
	return &SocketCANBus{
		txConn: txConn,
		rxConn: rxConn,
		tx:     socketcan.NewTransmitter(txConn),
		rx:     socketcan.NewReceiver(rxConn),
	}, nil
}

func (b *SocketCANBus) WriteFrame(ctx context.Context, frame can.Frame) error {
	return b.tx.TransmitFrame(ctx, frame)
}

func (b *SocketCANBus) ReadFrame(ctx context.Context) (can.Frame, error) {
	if !b.rx.Receive() {
		if err := b.rx.Err(); err != nil {
			return can.Frame{}, err
		}
		return can.Frame{}, fmt.Errorf("socketcan receiver closed")
	}
	return b.rx.Frame(), nil
}

func (b *SocketCANBus) Close() error {
	var first error
	if b.txConn != nil {
		if err := b.txConn.Close(); err != nil {
			first = err
		}
	}
	if b.rxConn != nil {
		if err := b.rxConn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
