package server

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/rpc/common"
)

// NewKVDBServerAdapter creates the adapter that maps every request type to
// the db.KVDB method of the same name
func NewKVDBServerAdapter() IRPCServerAdapter {
	return &kvdbServerAdapterImpl{}
}

type kvdbServerAdapterImpl struct{}

func (adapter *kvdbServerAdapterImpl) Handle(req *common.Message, database db.KVDB) *common.Message {
	// Check for nil database
	if database == nil {
		return common.NewErrorResponse(common.RetCInternalError, "handler: database is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTSet:
		return common.NewResponse(req.MsgType, database.Set(req.Key, req.Value))
	case common.MsgTSetMany:
		if len(req.Keys) != len(req.Values) {
			return invalid(req, "%d keys but %d values", len(req.Keys), len(req.Values))
		}
		return common.NewResponse(req.MsgType, database.SetMany(req.Keys, req.Values))
	case common.MsgTSwap:
		old, ok, err := database.Swap(req.Key, req.Value)
		return common.NewValueResponse(req.MsgType, old, ok, err)
	case common.MsgTSetIfAbsent:
		current, ok, err := database.SetIfAbsent(req.Key, req.Value)
		return common.NewValueResponse(req.MsgType, current, ok, err)
	case common.MsgTDelete:
		return common.NewResponse(req.MsgType, database.Delete(req.Key))
	case common.MsgTDeleteMany:
		return common.NewResponse(req.MsgType, database.DeleteMany(req.Keys))
	case common.MsgTDeletePrefix:
		return common.NewResponse(req.MsgType, database.DeletePrefix(req.Key))
	case common.MsgTGet:
		val, ok, err := database.Get(req.Key)
		return common.NewValueResponse(req.MsgType, val, ok, err)
	case common.MsgTGetMany:
		return handleGetMany(req, database)
	case common.MsgTHas:
		ok, err := database.Has(req.Key)
		resp := common.NewResponse(req.MsgType, err)
		resp.Ok = ok
		return resp
	case common.MsgTScan:
		return handleScan(req, database)
	case common.MsgTCount:
		n, err := database.Count(req.Key)
		resp := common.NewResponse(req.MsgType, err)
		resp.Count = int64(n)
		return resp
	case common.MsgTFlush:
		return common.NewResponse(req.MsgType, database.Flush())
	case common.MsgTForceFlush:
		return common.NewResponse(req.MsgType, database.ForceFlush())
	case common.MsgTFeatures:
		resp := common.NewResponse(req.MsgType, nil)
		resp.Count = int64(supportedFeatures(database))
		return resp
	case common.MsgTInfo:
		info, err := json.Marshal(database.GetInfo())
		resp := common.NewResponse(req.MsgType, err)
		resp.Meta = info
		return resp
	default:
		return common.NewErrorResponse(common.RetCUnsupportedOperation,
			fmt.Sprintf("unsupported message type: %s", req.MsgType))
	}
}

// handleGetMany answers with one value and one found flag per requested key
func handleGetMany(req *common.Message, database db.KVDB) *common.Message {
	values, err := database.GetMany(req.Keys)
	resp := common.NewResponse(req.MsgType, err)
	if err != nil {
		return resp
	}
	resp.Values = values
	resp.Found = make([]bool, len(values))
	for i, v := range values {
		resp.Found[i] = v != nil
	}
	return resp
}

// handleScan collects all matching entries into one response
func handleScan(req *common.Message, database db.KVDB) *common.Message {
	keys := make([][]byte, 0)
	values := make([][]byte, 0)
	err := database.Scan(req.Key, func(key, value []byte) bool {
		keys = append(keys, append([]byte{}, key...))
		values = append(values, append([]byte{}, value...))
		return true
	})
	resp := common.NewResponse(req.MsgType, err)
	if err == nil {
		resp.Keys = keys
		resp.Values = values
	}
	return resp
}

// supportedFeatures returns all features of database as one bit mask
func supportedFeatures(database db.KVDB) db.Feature {
	var mask db.Feature
	for f := db.FeatureOrderedScan; f <= db.FeatureReplicated; f <<= 1 {
		if database.SupportsFeature(f) {
			mask |= f
		}
	}
	return mask
}

func invalid(req *common.Message, format string, args ...any) *common.Message {
	return common.NewErrorResponse(common.RetCInvalidOperation,
		fmt.Sprintf("%s: %s", req.MsgType, fmt.Sprintf(format, args...)))
}
