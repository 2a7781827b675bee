package redistest

import (
	"strconv"

	"github.com/tidwall/redcon"
)

type resultType int

const (
	resultNil resultType = iota
	resultError
	resultBulk
	resultString
	resultArray
	resultInt
	// RESP3 shapes, flattened or sent as bulk strings to RESP2 clients.
	resultMap
	resultDouble
	resultPairs
)

const (
	resp2 = 2
	resp3 = 3
)

type result struct {
	typ     resultType
	bulk    []byte
	str     string
	arr     []result
	integer int64
	err     string
}

func okResult() result { return result{typ: resultString, str: "OK"} }
func intResult(n int64) result { return result{typ: resultInt, integer: n} }
func bulkResult(b []byte) result { return result{typ: resultBulk, bulk: b} }
func errResult(msg string) result { return result{typ: resultError, err: msg} }
func arrayResult(arr []result) result { return result{typ: resultArray, arr: arr} }
func doubleResult(f float64) result { return result{typ: resultDouble, bulk: formatFloat(f)} }

// mapResult takes alternating keys and values.
func mapResult(kv []result) result { return result{typ: resultMap, arr: kv} }

// pairsResult takes two-element arrays.
func pairsResult(pairs []result) result { return result{typ: resultPairs, arr: pairs} }

func bulkArray(values [][]byte) result {
	arr := make([]result, len(values))
	for i, v := range values {
		if v == nil {
			arr[i] = result{typ: resultNil}
			continue
		}
		arr[i] = bulkResult(v)
	}
	return arrayResult(arr)
}

func writeResult(conn redcon.Conn, res result, proto int) {
	switch res.typ {
	case resultNil:
		conn.WriteNull()
	case resultError:
		conn.WriteError(res.err)
	case resultBulk:
		conn.WriteBulk(res.bulk)
	case resultString:
		conn.WriteString(res.str)
	case resultArray:
		conn.WriteArray(len(res.arr))
		for _, r := range res.arr {
			writeResult(conn, r, proto)
		}
	case resultInt:
		conn.WriteInt64(res.integer)
	case resultMap:
		if proto == resp3 {
			conn.WriteRaw([]byte("%" + strconv.Itoa(len(res.arr)/2) + "\r\n")) //nolint:mnd
		} else {
			conn.WriteArray(len(res.arr))
		}
		for _, r := range res.arr {
			writeResult(conn, r, proto)
		}
	case resultDouble:
		if proto == resp3 {
			conn.WriteRaw([]byte("," + string(res.bulk) + "\r\n"))
		} else {
			conn.WriteBulk(res.bulk)
		}
	case resultPairs:
		if proto == resp3 {
			writeResult(conn, arrayResult(res.arr), proto)
			return
		}
		var flat []result
		for _, p := range res.arr {
			flat = append(flat, p.arr...)
		}
		writeResult(conn, arrayResult(flat), proto)
	default:
		conn.WriteNull()
	}
}
