package daq

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamBuffer_ReadWrite(t *testing.T) {
	sb := newStreamBuffer(16)

	n, err := sb.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, sb.Len())

	buf := make([]byte, 8)
	n, err = sb.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf[:n])
	assert.Equal(t, 0, sb.Len())
}

func TestStreamBuffer_ReadBlocksUntilWrite(t *testing.T) {
	sb := newStreamBuffer(16)

	got := make(chan []byte)
	go func() {
		buf := make([]byte, 4)
		n, _ := sb.Read(buf)
		got <- buf[:n]
	}()

	time.Sleep(20 * time.Millisecond)
	sb.Write([]byte{7, 8})

	select {
	case b := <-got:
		assert.Equal(t, []byte{7, 8}, b)
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Write")
	}
}

func TestStreamBuffer_CloseDrainsFirst(t *testing.T) {
	sb := newStreamBuffer(16)
	sb.Write([]byte{1, 2})
	sb.Close()

	data, err := io.ReadAll(sb)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)

	_, err = sb.Write([]byte{3})
	assert.Error(t, err)
}

func TestStreamBuffer_CloseWithError(t *testing.T) {
	sb := newStreamBuffer(16)
	boom := errors.New("boom")
	sb.CloseWithError(boom)

	_, err := sb.Read(make([]byte, 4))
	assert.ErrorIs(t, err, boom)
}

func TestStreamBuffer_Overflow(t *testing.T) {
	sb := newStreamBuffer(4)

	_, err := sb.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	_, err = sb.Write([]byte{4, 5})
	assert.ErrorIs(t, err, ErrBufferOverflow)

	buf := make([]byte, 8)
	n, err := sb.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = sb.Read(buf)
	assert.ErrorIs(t, err, ErrBufferOverflow)
}
