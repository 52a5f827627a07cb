package bookstorev1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName — content-subtype кодека: application/grpc+json.
const CodecName = "json"

// Codec сериализует сообщения API в JSON.
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

// Marshal кодирует сообщение.
func (Codec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s codec marshal %T: %w", CodecName, v, err)
	}
	return data, nil
}

// Unmarshal декодирует сообщение.
func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s codec unmarshal %T: %w", CodecName, v, err)
	}
	return nil
}

// Name возвращает имя кодека для регистрации.
func (Codec) Name() string {
	return CodecName
}

// CallOption выбирает JSON-кодек для вызовов клиента.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
