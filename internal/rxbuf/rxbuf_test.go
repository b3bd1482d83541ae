package rxbuf

import (
	"bytes"
	"testing"
)

func TestAppendPeekConsume(t *testing.T) {
	t.Parallel()

	b := New(4, 64)
	if err := b.Append([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := b.Append([]byte(" world")); err != nil {
		t.Fatal(err)
	}
	if b.Available() != 11 {
		t.Fatal("available:", b.Available())
	}

	p, err := b.Peek(5)
	if err != nil {
		t.Fatal(err)
	}
	if string(p) != "hello" {
		t.Fatalf("peek: %q", p)
	}
	if b.Available() != 11 {
		t.Fatal("peek must not consume")
	}

	if err = b.Consume(6); err != nil {
		t.Fatal(err)
	}
	p, err = b.Peek(b.Available())
	if err != nil {
		t.Fatal(err)
	}
	if string(p) != "world" {
		t.Fatalf("after consume: %q", p)
	}
}

func TestInsufficientData(t *testing.T) {
	t.Parallel()

	b := New(8, 8)
	b.Append([]byte{1, 2, 3})
	if _, err := b.Peek(4); err != ErrInsufficientData {
		t.Fatal("peek past end:", err)
	}
	if err := b.Consume(4); err != ErrInsufficientData {
		t.Fatal("consume past end:", err)
	}
	if b.Available() != 3 {
		t.Fatal("failed consume must not change state")
	}
	if _, err := b.Peek(-1); err != ErrInsufficientData {
		t.Fatal("negative peek:", err)
	}
}

func TestCapacityExceeded(t *testing.T) {
	t.Parallel()

	b := New(2, 8)
	if err := b.Append(make([]byte, 6)); err != nil {
		t.Fatal(err)
	}
	if err := b.Append(make([]byte, 3)); err != ErrCapacityExceeded {
		t.Fatal("expected capacity exceeded, got", err)
	}
	if b.Available() != 6 {
		t.Fatal("rejected append must leave buffer untouched:", b.Available())
	}

	// consumed bytes free up room without an explicit Compact
	b.Consume(4)
	if err := b.Append([]byte{9, 9, 9, 9, 9, 9}); err != nil {
		t.Fatal(err)
	}
	if b.Available() != 8 {
		t.Fatal(b.Available())
	}
}

func TestCompactKeepsUnconsumed(t *testing.T) {
	t.Parallel()

	b := New(16, 16)
	b.Append([]byte("0123456789"))
	b.Consume(7)
	b.Compact()

	if b.consumed != 0 || b.end != 3 {
		t.Fatal("compact offsets:", b.consumed, b.end)
	}
	p, _ := b.Peek(3)
	if string(p) != "789" {
		t.Fatalf("got %q", p)
	}

	b.Append([]byte("abc"))
	p, _ = b.Peek(b.Available())
	if string(p) != "789abc" {
		t.Fatalf("got %q", p)
	}
}

func TestGrowth(t *testing.T) {
	t.Parallel()

	b := New(1, 1<<16)
	var want []byte
	for i := 0; i < 1000; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, i%7+1)
		want = append(want, chunk...)
		if err := b.Append(chunk); err != nil {
			t.Fatal(err)
		}
		if i%3 == 0 {
			b.Consume(1)
			want = want[1:]
		}
	}

	got, err := b.Peek(b.Available())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("buffer content diverged after growth")
	}
}

func TestFullyConsumedRewinds(t *testing.T) {
	t.Parallel()

	b := New(4, 4)
	for i := 0; i < 10; i++ {
		if err := b.Append([]byte{1, 2, 3, 4}); err != nil {
			t.Fatal(i, err)
		}
		b.Consume(4)
	}
	if b.end != 0 || b.consumed != 0 {
		t.Fatal("offsets not rewound")
	}
}
