package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"github.com/turtacn/AgriBot-NLU/internal/application/nlu"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/agri_extractor"
	nlutypes "github.com/turtacn/AgriBot-NLU/pkg/types/nlu"
)

// NLUServiceName is the fully-qualified gRPC service name.
const NLUServiceName = "agrinlu.v1.NLU"

// TextRequest is the message of the single-text methods.
type TextRequest struct {
	nlutypes.TextRequest
}

// Validate rejects blank text and negative top_k; length limits stay with
// the service.
func (r *TextRequest) Validate() error { return r.TextRequest.Validate(0) }

// BatchRequest is the message of ExtractBatch.
type BatchRequest struct {
	Texts []string `json:"texts"`
}

// Validate rejects an empty batch.
func (r *BatchRequest) Validate() error {
	if len(r.Texts) == 0 {
		return fmt.Errorf("texts must not be empty")
	}
	return nil
}

// Empty is the message of the parameterless methods.
type Empty struct{}

// BatchResponse holds one result per input text, in input order.
type BatchResponse struct {
	Results          []*agri_extractor.ExtractionResult `json:"results"`
	Count            int                                `json:"count"`
	ProcessingTimeMs float64                            `json:"processing_time_ms"`
}

// RulesResponse lists the rule table.
type RulesResponse struct {
	Rules []agri_extractor.RuleSpec `json:"rules"`
}

// NLUServiceServer is the server API of agrinlu.v1.NLU.
type NLUServiceServer interface {
	Extract(context.Context, *TextRequest) (*agri_extractor.ExtractionResult, error)
	ExtractBatch(context.Context, *BatchRequest) (*BatchResponse, error)
	ClassifyIntent(context.Context, *TextRequest) (*nlu.IntentResult, error)
	Analyze(context.Context, *TextRequest) (*nlu.AnalysisResult, error)
	Labels(context.Context, *Empty) (*nlu.LabelsInfo, error)
	Rules(context.Context, *Empty) (*RulesResponse, error)
}

// NLUServer adapts nlu.Service to NLUServiceServer.
type NLUServer struct {
	svc nlu.Service
}

// NewNLUServer wraps svc.
func NewNLUServer(svc nlu.Service) *NLUServer {
	return &NLUServer{svc: svc}
}

// Register adds the NLU service to s.
func (n *NLUServer) Register(s *Server) {
	s.RegisterService(&NLUServiceDesc, n)
}

func (n *NLUServer) Extract(ctx context.Context, req *TextRequest) (*agri_extractor.ExtractionResult, error) {
	return n.svc.ExtractEntities(ctx, req.Text)
}

func (n *NLUServer) ExtractBatch(ctx context.Context, req *BatchRequest) (*BatchResponse, error) {
	start := time.Now()
	results, err := n.svc.ExtractBatch(ctx, req.Texts)
	if err != nil {
		return nil, err
	}
	return &BatchResponse{
		Results:          results,
		Count:            len(results),
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

func (n *NLUServer) ClassifyIntent(ctx context.Context, req *TextRequest) (*nlu.IntentResult, error) {
	return n.svc.ClassifyIntent(ctx, req.Text, req.TopK)
}

func (n *NLUServer) Analyze(ctx context.Context, req *TextRequest) (*nlu.AnalysisResult, error) {
	return n.svc.Analyze(ctx, req.Text, req.TopK)
}

func (n *NLUServer) Labels(context.Context, *Empty) (*nlu.LabelsInfo, error) {
	return n.svc.Labels(), nil
}

func (n *NLUServer) Rules(context.Context, *Empty) (*RulesResponse, error) {
	return &RulesResponse{Rules: n.svc.Rules()}, nil
}

// unaryHandler builds a grpc.MethodDesc handler for one typed method.
func unaryHandler[Req any, Resp any](method string, call func(NLUServiceServer, context.Context, *Req) (*Resp, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + NLUServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		impl := srv.(NLUServiceServer)
		if interceptor == nil {
			return call(impl, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(impl, ctx, req.(*Req))
		})
	}
}

// NLUServiceDesc describes agrinlu.v1.NLU. Messages are JSON encoded; see
// CodecName.
var NLUServiceDesc = grpc.ServiceDesc{
	ServiceName: NLUServiceName,
	HandlerType: (*NLUServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: unaryHandler("Extract", NLUServiceServer.Extract)},
		{MethodName: "ExtractBatch", Handler: unaryHandler("ExtractBatch", NLUServiceServer.ExtractBatch)},
		{MethodName: "ClassifyIntent", Handler: unaryHandler("ClassifyIntent", NLUServiceServer.ClassifyIntent)},
		{MethodName: "Analyze", Handler: unaryHandler("Analyze", NLUServiceServer.Analyze)},
		{MethodName: "Labels", Handler: unaryHandler("Labels", NLUServiceServer.Labels)},
		{MethodName: "Rules", Handler: unaryHandler("Rules", NLUServiceServer.Rules)},
	},
	Metadata: "agrinlu/v1/nlu.json",
}

// NLUClient calls agrinlu.v1.NLU and decodes into the public wire types.
type NLUClient struct {
	cc grpc.ClientConnInterface
}

// NewNLUClient wraps an established connection.
func NewNLUClient(cc grpc.ClientConnInterface) *NLUClient {
	return &NLUClient{cc: cc}
}

func (c *NLUClient) invoke(ctx context.Context, method string, in, out interface{}, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+NLUServiceName+"/"+method, in, out, opts...)
}

func (c *NLUClient) Extract(ctx context.Context, text string, opts ...grpc.CallOption) (*nlutypes.ExtractionResult, error) {
	out := new(nlutypes.ExtractionResult)
	if err := c.invoke(ctx, "Extract", &TextRequest{nlutypes.TextRequest{Text: text}}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NLUClient) ExtractBatch(ctx context.Context, texts []string, opts ...grpc.CallOption) (*nlutypes.BatchResult, error) {
	out := new(nlutypes.BatchResult)
	if err := c.invoke(ctx, "ExtractBatch", &BatchRequest{Texts: texts}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NLUClient) ClassifyIntent(ctx context.Context, text string, topK int, opts ...grpc.CallOption) (*nlutypes.IntentResult, error) {
	out := new(nlutypes.IntentResult)
	if err := c.invoke(ctx, "ClassifyIntent", &TextRequest{nlutypes.TextRequest{Text: text, TopK: topK}}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NLUClient) Analyze(ctx context.Context, text string, topK int, opts ...grpc.CallOption) (*nlutypes.AnalysisResult, error) {
	out := new(nlutypes.AnalysisResult)
	if err := c.invoke(ctx, "Analyze", &TextRequest{nlutypes.TextRequest{Text: text, TopK: topK}}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NLUClient) Labels(ctx context.Context, opts ...grpc.CallOption) (*nlutypes.LabelsInfo, error) {
	out := new(nlutypes.LabelsInfo)
	if err := c.invoke(ctx, "Labels", &Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NLUClient) Rules(ctx context.Context, opts ...grpc.CallOption) ([]nlutypes.Rule, error) {
	out := new(nlutypes.RulesResult)
	if err := c.invoke(ctx, "Rules", &Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out.Rules, nil
}

//Personal.AI order the ending
