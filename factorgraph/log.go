package factorgraph

import (
	"bufio"
	"encoding/binary"
	"io"
	"iter"
	"math"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// TransactionLog appends transactions to an io.Writer. Each record is the encoded structpb
// message prefixed by its little endian uint32 length, so a reader can split records back out.
type TransactionLog struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewTransactionLog returns a log writing to w.
func NewTransactionLog(w io.Writer) *TransactionLog {
	return &TransactionLog{writer: w}
}

// WriteTransaction encodes and appends tx.
func (l *TransactionLog) WriteTransaction(tx *Transaction) error {
	msg, err := TransactionToProto(tx)
	if err != nil {
		return err
	}
	raw, err := proto.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshaling transaction")
	}
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(raw)))

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, buf := range [][]byte{header, raw} {
		if _, err := l.writer.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying writer if it is an io.Closer. Otherwise it is a noop.
func (l *TransactionLog) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ReadTransactions iterates over the records of a TransactionLog. Iteration stops at the first
// malformed record, which is yielded as an error.
func ReadTransactions(r io.Reader) iter.Seq2[*Transaction, error] {
	// 2 GiB, the largest protobuf message, plus the length header. Fall back to max int
	// size if necessary on 32-bit platforms.
	const maxRecord = min(1024*1024*1024*2+4, math.MaxInt)
	return func(yield func(*Transaction, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(nil, maxRecord)
		scanner.Split(splitRecords)
		for scanner.Scan() {
			msg := &structpb.Struct{}
			if err := proto.Unmarshal(scanner.Bytes(), msg); err != nil {
				yield(nil, errors.Wrap(err, "unmarshaling transaction"))
				return
			}
			tx, err := TransactionFromProto(msg)
			if !yield(tx, err) || err != nil {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func splitRecords(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if len(data) < 4 {
		if atEOF {
			return 0, nil, errors.New("truncated transaction record")
		}
		return 0, nil, nil
	}
	size := int(binary.LittleEndian.Uint32(data[:4]))
	if len(data)-4 < size {
		if atEOF {
			return 0, nil, errors.New("truncated transaction record")
		}
		return 0, nil, nil
	}
	return size + 4, data[4 : 4+size], nil
}
