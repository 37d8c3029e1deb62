package mqtt

// Fragment splits a publication into the frames a device with a receive
// buffer of bufferSize bytes observes. A payload that fits is a single
// ChunkComplete frame. Otherwise the first frame is ChunkInitial and carries
// the topic, and the rest are ChunkSubsequent frames with an empty topic.
// Every fragment carries the total size and its own offset.
func Fragment(id uint16, topic string, payload []byte, bufferSize int) []Message {
	total := len(payload)
	if bufferSize <= 0 || total <= bufferSize {
		return []Message{{
			ID:      id,
			Topic:   topic,
			Payload: payload,
			Details: Details{Kind: ChunkComplete, Total: total},
		}}
	}

	frames := make([]Message, 0, (total+bufferSize-1)/bufferSize)
	for offset := 0; offset < total; offset += bufferSize {
		end := min(offset+bufferSize, total)
		m := Message{
			ID:      id,
			Payload: payload[offset:end],
			Details: Details{Kind: ChunkSubsequent, Offset: offset, Total: total},
		}
		if offset == 0 {
			m.Topic = topic
			m.Details.Kind = ChunkInitial
		}
		frames = append(frames, m)
	}
	return frames
}
