package stomp

import (
	"bytes"
	"strconv"
	"testing"
)

func benchmarkMessage(bodySize int) []byte {
	frame := NewFrame(CommandMessage,
		HeaderDestination, "/queue/orders",
		HeaderMessageID, "m-1",
		HeaderSubscription, "sub-0",
		"note", "a:b\\c",
	)
	frame.Body = bytes.Repeat([]byte("x"), bodySize)
	data, err := Encode(frame, V12)
	if err != nil {
		panic(err)
	}
	return data
}

func BenchmarkParserFeedMessage(b *testing.B) {
	data := benchmarkMessage(256)
	parser := NewParser(V12, Limits{})
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		frames, _, err := parser.Feed(data)
		if err != nil || len(frames) != 1 {
			b.Fatalf("unexpected feed result: %d frames, %v", len(frames), err)
		}
	}
}

func BenchmarkParserFeedSplit(b *testing.B) {
	data := benchmarkMessage(4096)
	parser := NewParser(V12, Limits{})
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for offset := 0; offset < len(data); offset += 512 {
			end := min(offset+512, len(data))
			if _, _, err := parser.Feed(data[offset:end]); err != nil {
				b.Fatalf("feed failed: %v", err)
			}
		}
	}
}

func BenchmarkEncodeSend(b *testing.B) {
	frame := NewFrame(CommandSend, HeaderDestination, "/queue/orders", HeaderContentType, "text/plain")
	frame.Body = bytes.Repeat([]byte("x"), 256)
	buffer := make([]byte, 0, 1024)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var err error
		if buffer, err = AppendFrame(buffer[:0], frame, V12); err != nil {
			b.Fatalf("encode failed: %v", err)
		}
	}
}

func BenchmarkSessionDispatch(b *testing.B) {
	h := newHarness(b)
	h.connected(b, "1.2")
	if _, err := h.session.Subscribe(NewHeaders(HeaderDestination, "/queue/orders", HeaderID, "sub-0")); err != nil {
		b.Fatalf("subscribe failed: %v", err)
	}
	delivered := 0
	h.session.OnMessage(func(*Session, *MessageEvent) { delivered++ })

	var batch []byte
	for index := 0; index < 16; index++ {
		frame := NewFrame(CommandMessage,
			HeaderDestination, "/queue/orders",
			HeaderMessageID, "m-"+strconv.Itoa(index),
			HeaderSubscription, "sub-0",
		)
		frame.Body = []byte("payload")
		data, _ := Encode(frame, V12)
		batch = append(batch, data...)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.session.receive(h.transport, batch, h.clock.Now())
	}
	b.StopTimer()
	if delivered != 16*b.N {
		b.Fatalf("expected %d deliveries, got %d", 16*b.N, delivered)
	}
}
